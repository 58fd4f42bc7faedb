package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/avrahamavi/docuquery/config"
	"github.com/avrahamavi/docuquery/internal/embedding"
	"github.com/avrahamavi/docuquery/internal/store"
)

// ingestDoc mirrors the HTTP ingestion document shape.
type ingestDoc struct {
	Heading     string `json:"heading"`
	Path        string `json:"path"`
	URL         string `json:"url"`
	Content     string `json:"content"`
	ChunkID     int    `json:"chunk_id"`
	TotalChunks int    `json:"total_chunks"`
	Level       int    `json:"level"`
}

func ingestCMD() *cobra.Command {
	var cfgPath string
	var filePath string
	var namespace string
	var docType string
	var ingest = &cobra.Command{
		Use:   "ingest",
		Short: "Embed and store documentation chunks from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if filePath == "" || namespace == "" || docType == "" {
				return fmt.Errorf("--file, --namespace and --doc-type are required")
			}
			cfg := config.LoadConfig(cfgPath)
			if err := cfg.Storage.Postgres.Validate(); err != nil {
				return err
			}
			if err := cfg.Embedding.Validate(); err != nil {
				return err
			}

			data, err := os.ReadFile(filePath)
			if err != nil {
				return err
			}
			var docs []ingestDoc
			if err := json.Unmarshal(data, &docs); err != nil {
				return fmt.Errorf("parse %s: %w", filePath, err)
			}
			if len(docs) == 0 {
				return fmt.Errorf("no documents in %s", filePath)
			}

			ctx := context.Background()
			st, err := store.New(ctx, cfg.Storage.Postgres.DSN(), cfg.Embedding.Dimensions)
			if err != nil {
				return err
			}
			defer st.DB.Close()

			encoder := embedding.NewHTTPEncoder(cfg.Embedding, nil)
			texts := make([]string, 0, len(docs))
			for _, d := range docs {
				texts = append(texts, d.Heading+"\n\n"+d.Content)
			}
			vecs, err := encoder.EncodeBatch(ctx, texts)
			if err != nil {
				return err
			}

			chunks := make([]store.DocumentChunk, 0, len(docs))
			for i, d := range docs {
				level := d.Level
				if level == 0 {
					level = 1
				}
				chunks = append(chunks, store.DocumentChunk{
					Namespace:   namespace,
					DocType:     docType,
					Heading:     d.Heading,
					Path:        d.Path,
					URL:         d.URL,
					Content:     d.Content,
					ChunkID:     d.ChunkID,
					TotalChunks: d.TotalChunks,
					Level:       level,
					Embedding:   vecs[i],
				})
			}
			count, err := st.InsertChunks(ctx, chunks)
			if err != nil {
				return err
			}
			fmt.Printf("stored %d chunks in namespace %q\n", count, namespace)
			return nil
		},
	}
	ingest.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config)")
	ingest.Flags().StringVarP(&filePath, "file", "f", "", "JSON file with documentation chunks")
	ingest.Flags().StringVarP(&namespace, "namespace", "n", "", "target namespace, e.g. django-docs")
	ingest.Flags().StringVarP(&docType, "doc-type", "t", "", "tool/category the chunks belong to")

	return ingest
}
