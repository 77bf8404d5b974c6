package worker

import (
	"context"
	"fmt"
	"time"

	"quorum/internal/types"
	"quorum/internal/worker/sandbox"
)

// FileFetchWorker downloads the URL named in the task into the workspace
// downloads directory.
type FileFetchWorker struct {
	fetcher *sandbox.Fetcher
}

// NewFileFetchWorker creates a file-fetch worker.
func NewFileFetchWorker(fetcher *sandbox.Fetcher) *FileFetchWorker {
	return &FileFetchWorker{fetcher: fetcher}
}

func (w *FileFetchWorker) ID() string          { return IDFileFetch }
func (w *FileFetchWorker) DisplayName() string { return "File Manager" }

func (w *FileFetchWorker) Process(ctx context.Context, task types.Task) types.WorkerResult {
	started := time.Now()

	if w.fetcher == nil {
		return result(w.ID(), w.DisplayName(), "File fetching is not available.", "", 0.1, started)
	}

	url := extractURL(task.Query)
	if url == "" {
		url = extractURL(task.Context)
	}
	if url == "" {
		return result(w.ID(), w.DisplayName(),
			"No URL found in the request. Provide the full http(s) URL to download.",
			"", 0.1, started)
	}

	path, size, err := w.fetcher.FetchFile(ctx, url)
	if err != nil {
		return failure(w.ID(), w.DisplayName(), err, started)
	}
	return result(w.ID(), w.DisplayName(),
		fmt.Sprintf("Downloaded %s to %s (%d bytes)", url, path, size),
		url, 1.0, started)
}
