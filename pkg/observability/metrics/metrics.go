package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
)

var (
	filesSubmitted atomic.Int64
	filesDuplicate atomic.Int64
	filesCompleted atomic.Int64
	filesFailed    atomic.Int64
	rowsProcessed  atomic.Int64
	rowsSkipped    atomic.Int64
	runsInFlight   atomic.Int64
)

func FileSubmitted() { filesSubmitted.Add(1) }

func FileDuplicate() { filesDuplicate.Add(1) }

func FileCompleted(processed, skipped int) {
	filesCompleted.Add(1)
	rowsProcessed.Add(int64(processed))
	rowsSkipped.Add(int64(skipped))
}

func FileFailed(processed, skipped int) {
	filesFailed.Add(1)
	rowsProcessed.Add(int64(processed))
	rowsSkipped.Add(int64(skipped))
}

func RunStarted() { runsInFlight.Add(1) }

func RunFinished() { runsInFlight.Add(-1) }

type Snapshot struct {
	FilesSubmitted int64
	FilesDuplicate int64
	FilesCompleted int64
	FilesFailed    int64
	RowsProcessed  int64
	RowsSkipped    int64
	RunsInFlight   int64
}

func Read() Snapshot {
	return Snapshot{
		FilesSubmitted: filesSubmitted.Load(),
		FilesDuplicate: filesDuplicate.Load(),
		FilesCompleted: filesCompleted.Load(),
		FilesFailed:    filesFailed.Load(),
		RowsProcessed:  rowsProcessed.Load(),
		RowsSkipped:    rowsSkipped.Load(),
		RunsInFlight:   runsInFlight.Load(),
	}
}

func WritePrometheus(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	writeMetrics(w, Read())
}

func writeMetrics(w io.Writer, s Snapshot) {
	write := func(name, kind, help string, value int64) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s %s\n", name, kind)
		fmt.Fprintf(w, "%s %d\n", name, value)
	}

	write("catalog_ingest_files_submitted_total", "counter", "Files accepted for ingestion.", s.FilesSubmitted)
	write("catalog_ingest_files_duplicate_total", "counter", "Submissions rejected because the content checksum was already ingested.", s.FilesDuplicate)
	write("catalog_ingest_files_completed_total", "counter", "Ingestion runs that reached completed.", s.FilesCompleted)
	write("catalog_ingest_files_failed_total", "counter", "Ingestion runs that reached failed.", s.FilesFailed)
	write("catalog_ingest_rows_processed_total", "counter", "Rows upserted into the catalog.", s.RowsProcessed)
	write("catalog_ingest_rows_skipped_total", "counter", "Rows skipped as row-local errors.", s.RowsSkipped)
	write("catalog_ingest_runs_in_flight", "gauge", "Ingestion runs currently executing.", s.RunsInFlight)
}
