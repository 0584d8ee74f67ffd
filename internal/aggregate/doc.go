// Package aggregate lets several independently running contributors report
// fractional completion into one shared, monotonically advancing total.
//
// A Tracker owns a fixed quota of work units. Each registered Contributor is
// handed a slice of that quota and converts progress on its own local scale
// into whole units of the shared total. When a contributor joins, the
// remaining quota is re-partitioned so that more-complete contributors cede
// less than less-complete ones and the aggregate never moves backward.
//
// The tracker finishes exactly once: explicitly through Tracker.Finish, or
// implicitly when its last active contributor finishes.
package aggregate
