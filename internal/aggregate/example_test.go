package aggregate

import (
	"fmt"
	"time"
)

type printDisplay struct {
	NopDisplay
}

func (printDisplay) Progress(message string, position int) {
	if message == "" {
		fmt.Println(position)
		return
	}
	fmt.Println(position, message)
}

func (printDisplay) Finish() {
	fmt.Println("done")
}

// ExampleTracker shows two contributors sharing one aggregate total.
func ExampleTracker() {
	download := NewContributor("download")
	index := NewContributor("index")
	tracker := NewTracker(
		WithDisplay(printDisplay{}),
		WithContributors(download, index),
	)
	tracker.StartWithEstimate(time.Minute)

	download.Start(4)
	index.Start(2)
	download.ProgressWithMessage("fetching", 2)
	index.ProgressWithMessage("indexing", 1)
	download.Finish()
	index.Finish()

	// Output:
	// 2500 fetching
	// 5000 indexing
	// 7500
	// 10000
	// done
}
