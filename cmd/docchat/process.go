package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"docchat/internal/bootstrap"
	"docchat/internal/repository"
)

func newProcessCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "process [documentID]",
		Short: "Process one document, or the oldest one waiting in processing",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var documentID uint
			if len(args) == 1 {
				id, err := strconv.ParseUint(args[0], 10, 64)
				if err != nil || id == 0 {
					return fmt.Errorf("invalid document id %q", args[0])
				}
				documentID = uint(id)
			}
			return withApp(cmd.Context(), func(app *bootstrap.App) error {
				return processDocument(cmd.Context(), app, documentID)
			})
		},
	}
}

func processDocument(ctx context.Context, app *bootstrap.App, documentID uint) error {
	if documentID == 0 {
		doc, err := repository.NewDocumentRepository(app.DB).OldestProcessing(ctx)
		if err != nil {
			return err
		}
		if doc == nil {
			log.Info().Msg("no document waiting in processing")
			return nil
		}
		documentID = doc.ID
	}

	res, err := app.Processor.Process(ctx, documentID)
	if err != nil {
		return fmt.Errorf("process document %d failed: %w", documentID, err)
	}
	log.Info().
		Uint("document_id", res.DocumentID).
		Int("chunks", res.Chunks).
		Int("pages", res.Pages).
		Str("embed_source", res.EmbedSource).
		Bool("superseded", res.Superseded).
		Msg("document processed")
	return nil
}
