package pipeline

import (
	"context"
	"fmt"

	"catalog-harvester/lib/cleaner"
	"catalog-harvester/lib/dataset"
	"catalog-harvester/lib/download"
)

type DownloadReport struct {
	Outcomes []download.Outcome
	// ByBucket counts outcomes by bucket and then by status.
	ByBucket map[string]map[download.Status]int
	Failed   int
}

// Download reads a cleaned dataset and fetches the document each record
// links to.
func Download(ctx context.Context, d download.Downloader, in, linkField, destRoot string) (DownloadReport, error) {
	records, err := dataset.Read[cleaner.Record](in)
	if err != nil {
		return DownloadReport{}, err
	}
	if linkField == "" {
		return DownloadReport{}, fmt.Errorf("a link field is required")
	}

	report := DownloadReport{
		Outcomes: d.Download(ctx, records, linkField, destRoot),
		ByBucket: map[string]map[download.Status]int{},
	}
	for _, o := range report.Outcomes {
		bucket := o.Task.Bucket
		if bucket == "" {
			bucket = "-"
		}
		if report.ByBucket[bucket] == nil {
			report.ByBucket[bucket] = map[download.Status]int{}
		}
		report.ByBucket[bucket][o.Status]++
		if o.Status == download.StatusFailed {
			report.Failed++
		}
	}
	return report, ctx.Err()
}
