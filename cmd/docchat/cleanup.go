package main

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"docchat/internal/bootstrap"
)

func newCleanupCommand() *cobra.Command {
	var (
		sessionID uint
		olderThan time.Duration
	)
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete stale documents of a session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				olderThan = time.Duration(cfg.Retention.MaxAgeHours) * time.Hour
			}
			return withApp(cmd.Context(), func(app *bootstrap.App) error {
				res, err := app.Sessions.CleanupStaleDocuments(cmd.Context(), sessionID, time.Now().Add(-olderThan))
				if err != nil {
					return err
				}
				log.Info().
					Uint("session_id", res.SessionID).
					Int64("deleted_documents", res.DeletedDocuments).
					Int64("deleted_chunks", res.DeletedChunks).
					Msg("cleanup finished")
				return nil
			})
		},
	}
	cmd.Flags().UintVar(&sessionID, "session", 0, "session id")
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "minimum document age (default: retention.max_age_hours)")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}
