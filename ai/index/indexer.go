// Package index performs asynchronous embedding indexing of notes.
// Note creation never blocks on the embedding provider: the API handler
// enqueues the created note and the indexer embeds and stores its vector
// in the background.
package index

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mindvault/mindvault/ai"
	"github.com/mindvault/mindvault/plugin/markdown"
	"github.com/mindvault/mindvault/store"
)

// Indexer consumes created or updated notes and maintains their embeddings.
type Indexer struct {
	store     *store.Store
	embedding ai.EmbeddingService
	markdown  markdown.Service
	model     string

	queue   chan *store.Note
	workers int
	wg      sync.WaitGroup
	stopCh  chan struct{}
}

// New creates an Indexer.
func New(st *store.Store, embedding ai.EmbeddingService, md markdown.Service, model string, workers int) *Indexer {
	if workers <= 0 {
		workers = 2
	}
	return &Indexer{
		store:     st,
		embedding: embedding,
		markdown:  md,
		model:     model,
		queue:     make(chan *store.Note, 100),
		workers:   workers,
		stopCh:    make(chan struct{}),
	}
}

// Start launches the worker goroutines.
func (i *Indexer) Start() {
	for w := 0; w < i.workers; w++ {
		i.wg.Add(1)
		go i.worker(w)
	}
	slog.Info("note indexer started", "workers", i.workers, "model", i.model)
}

// Stop drains workers. Queued notes that were not processed yet are picked
// up by the next Reindex pass.
func (i *Indexer) Stop() {
	close(i.stopCh)
	i.wg.Wait()
	slog.Info("note indexer stopped")
}

// EnqueueAsync submits a note for embedding without blocking the caller.
// When the queue is full the note is skipped; Reindex covers the gap.
func (i *Indexer) EnqueueAsync(note *store.Note) {
	select {
	case i.queue <- note:
	case <-time.After(50 * time.Millisecond):
		slog.Debug("note indexing skipped (queue full)", "note_uid", note.UID)
	case <-i.stopCh:
	}
}

// Reindex embeds every note that has no embedding for the current model.
// Used at startup and after model changes.
func (i *Indexer) Reindex(ctx context.Context) (int, error) {
	notes, err := i.store.ListNotesWithoutEmbedding(ctx, &store.FindNotesWithoutEmbedding{
		Model: i.model,
		Limit: 500,
	})
	if err != nil {
		return 0, err
	}

	indexed := 0
	for _, note := range notes {
		if err := i.indexNote(ctx, note); err != nil {
			slog.Warn("reindex failed for note", "note_uid", note.UID, "error", err)
			continue
		}
		indexed++
	}
	return indexed, nil
}

func (i *Indexer) worker(id int) {
	defer i.wg.Done()

	for {
		select {
		case <-i.stopCh:
			return
		case note, ok := <-i.queue:
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := i.indexNote(ctx, note); err != nil {
				slog.Warn("note indexing failed",
					"note_uid", note.UID,
					"worker", id,
					"error", err)
			}
			cancel()
		}
	}
}

func (i *Indexer) indexNote(ctx context.Context, note *store.Note) error {
	start := time.Now()

	vector, err := i.embedding.Embed(ctx, EmbeddingText(i.markdown, note))
	if err != nil {
		return err
	}

	if _, err := i.store.UpsertNoteEmbedding(ctx, &store.NoteEmbedding{
		NoteUID:   note.UID,
		Model:     i.model,
		Embedding: vector,
	}); err != nil {
		return err
	}

	slog.Debug("note indexed",
		"note_uid", note.UID,
		"latency_ms", time.Since(start).Milliseconds())
	return nil
}

// EmbeddingText composes the text submitted to the embedding provider:
// title, markdown-stripped content, and tags, newline-joined.
func EmbeddingText(md markdown.Service, note *store.Note) string {
	parts := make([]string, 0, 3)
	if title := strings.TrimSpace(note.Title); title != "" {
		parts = append(parts, title)
	}
	if content := md.PlainText(note.Content); content != "" {
		parts = append(parts, content)
	}
	if len(note.Tags) > 0 {
		parts = append(parts, strings.Join(note.Tags, " "))
	}
	return strings.Join(parts, "\n")
}
