// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/poiesic/kbsearch/core"
	"github.com/poiesic/kbsearch/fusion"
	"github.com/poiesic/kbsearch/ingestion"
	"github.com/poiesic/kbsearch/reembed"
	"github.com/poiesic/kbsearch/search"
	"github.com/urfave/cli/v2"
)

// maxLineSize bounds a single input line; documents can be long.
const maxLineSize = 1 << 20

func embedCommand(c *cli.Context) error {
	texts, err := readLines(c.App.Reader, false)
	if err != nil {
		return fmt.Errorf("failed to read stdin: %w", err)
	}

	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	vectors, stats, err := engine.Embed(c.Context, texts)
	if err != nil {
		return fmt.Errorf("embedding failed: %w", err)
	}

	enc := json.NewEncoder(c.App.Writer)
	for _, v := range vectors {
		if err := enc.Encode(v); err != nil {
			return err
		}
	}
	fmt.Fprintf(c.App.ErrWriter, "Embedded %d texts: %d cache hits, %d misses, %d provider calls (hit rate %.1f%%)\n",
		stats.Total, stats.Hits, stats.Misses, stats.GenerationCalls, stats.HitRate()*100)
	return nil
}

func ingestCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("at least one file is required")
	}

	var contents []string
	for _, path := range c.Args().Slice() {
		docs, err := readDocuments(path, c.Bool("whole-file"))
		if err != nil {
			return err
		}
		contents = append(contents, docs...)
	}

	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	pipeline, err := engine.NewIngestionPipeline(ingestion.WithPoolSize(c.Int("workers")))
	if err != nil {
		return err
	}
	defer pipeline.Release()

	return ingest(c, pipeline, contents)
}

func seedCommand(c *cli.Context) error {
	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	pipeline, err := engine.NewIngestionPipeline()
	if err != nil {
		return err
	}
	defer pipeline.Release()

	return ingest(c, pipeline, sampleCorpus)
}

// ingest stores contents in pages of the provider batch limit and waits for
// every page to be embedded.
func ingest(c *cli.Context, pipeline *ingestion.Pipeline, contents []string) error {
	pageSize := c.Int("batch-limit")
	if pageSize <= 0 {
		pageSize = len(contents)
	}

	var jobs []*ingestion.Job
	for start := 0; start < len(contents); start += pageSize {
		end := min(start+pageSize, len(contents))
		job, err := pipeline.Ingest(c.Context, contents[start:end], &ingestion.IngestOptions{
			Metadata: map[string]string{"source": "cli"},
		})
		if err != nil {
			return fmt.Errorf("ingestion failed: %w", err)
		}
		jobs = append(jobs, job)
	}

	documents, failed := 0, 0
	for _, job := range jobs {
		documents += len(job.Documents)
		if _, err := job.Wait(c.Context); err != nil {
			failed += len(job.Documents)
			fmt.Fprintf(c.App.ErrWriter, "job %s: %v\n", job.ID, err)
		}
	}

	fmt.Fprintf(c.App.ErrWriter, "Stored %d documents (%d not embedded)\n", documents, failed)
	if failed > 0 {
		return fmt.Errorf("%d documents could not be embedded", failed)
	}
	return nil
}

func searchCommand(c *cli.Context) error {
	query := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("a query is required")
	}

	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	searcher, err := engine.NewSearcher(
		search.WithFusionConfig(fusionConfigFromFlags(c)),
		search.WithMinSimilarity(float32(c.Float64("min-similarity"))),
	)
	if err != nil {
		return err
	}

	results, err := searcher.Search(c.Context, query, c.Int("max-hits"))
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if c.Bool("json") {
		return writeJSON(c.App.Writer, results)
	}
	printResults(c.App.Writer, results)
	return nil
}

func reembedCommand(c *cli.Context) error {
	// Create reembedding config
	reembedConfig := &reembed.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
		SkipCurrent:    c.Bool("skip-current"),
	}

	// Validate config
	if reembedConfig.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if reembedConfig.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if reembedConfig.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	reembedder, err := engine.NewReembedder(reembedConfig, c.App.ErrWriter)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.ErrWriter, "Database: %s\n", c.String("db"))
	fmt.Fprintf(c.App.ErrWriter, "Embedding host: %s\n", c.String("embedding-host"))
	fmt.Fprintf(c.App.ErrWriter, "Embedding model: %s\n", c.String("embedding-model"))
	fmt.Fprintln(c.App.ErrWriter)

	if _, err := reembedder.Run(c.Context); err != nil {
		return fmt.Errorf("reembedding failed: %w", err)
	}
	return nil
}

func fuseCommand(c *cli.Context) error {
	semantic, err := readScoredEntries(c.String("semantic"))
	if err != nil {
		return err
	}
	keyword, err := readScoredEntries(c.String("keyword"))
	if err != nil {
		return err
	}

	fused, err := fusion.Fuse(semantic, keyword, fusionConfigFromFlags(c))
	if err != nil {
		return err
	}
	return writeJSON(c.App.Writer, fused)
}

func fusionConfigFromFlags(c *cli.Context) fusion.Config {
	return fusion.Config{
		SemanticWeight: c.Float64("semantic-weight"),
		KeywordWeight:  c.Float64("keyword-weight"),
		K:              c.Float64("rrf-k"),
	}
}

// readLines returns the non-blank lines of r. With keepBlank, blank lines
// are returned too so output lines stay aligned with input lines.
func readLines(r io.Reader, keepBlank bool) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var lines []string
	for scanner.Scan() {
		line := scanner.Text()
		if !keepBlank && strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}

func readDocuments(path string, wholeFile bool) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if wholeFile {
		data, err := io.ReadAll(f)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(string(data)) == "" {
			return nil, nil
		}
		return []string{string(data)}, nil
	}
	lines, err := readLines(f, false)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return lines, nil
}

func readScoredEntries(path string) ([]core.ScoredEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []core.ScoredEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return entries, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printResults(w io.Writer, results []core.RankedEntry) {
	fmt.Fprintf(w, "Found %d hits\n", len(results))
	for i, hit := range results {
		fmt.Fprintf(w, "%d: '%s' (%s)[%0.4f] semantic=%d keyword=%d\n",
			i, hit.Content, hit.ID, hit.Score, hit.SemanticRank, hit.KeywordRank)
	}
}
