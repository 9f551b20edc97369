package main

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/vertextoedge/sharelink/internal/adapter/jwtauth"
	"github.com/vertextoedge/sharelink/internal/domain"
)

func newTokenCmd() *cobra.Command {
	var (
		userID int64
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an owner API bearer token signed with auth.jwt_secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if userID <= 0 {
				return fmt.Errorf("--user must be a positive id")
			}
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			verifier, err := jwtauth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.GetLeeway())
			if err != nil {
				return err
			}
			token, err := verifier.Issue(userID, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "Owner user id carried in the token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}

func newImportCmd() *cobra.Command {
	var (
		fileID      int64
		ownerID     int64
		name        string
		contentType string
	)
	cmd := &cobra.Command{
		Use:   "import <path>",
		Short: "Copy a file into the local file store so it can be shared",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if fileID <= 0 || ownerID <= 0 {
				return fmt.Errorf("--id and --owner must be positive ids")
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if a.local == nil {
					return fmt.Errorf("import requires storage.backend=local")
				}

				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()

				if name == "" {
					name = filepath.Base(args[0])
				}
				if contentType == "" {
					contentType = mime.TypeByExtension(filepath.Ext(name))
				}

				size, err := a.local.PutFile(ctx, &domain.FileMetadata{
					ID:          fileID,
					OwnerID:     ownerID,
					Name:        name,
					ContentType: contentType,
				}, f)
				if err != nil {
					return fmt.Errorf("failed to import %s: %w", args[0], err)
				}
				return printJSON(cmd.OutOrStdout(), map[string]interface{}{
					"file_id":  fileID,
					"owner_id": ownerID,
					"name":     name,
					"size":     size,
				})
			})
		},
	}
	cmd.Flags().Int64Var(&fileID, "id", 0, "File id to store the content under")
	cmd.Flags().Int64Var(&ownerID, "owner", 0, "Owner user id")
	cmd.Flags().StringVar(&name, "name", "", "Display name (defaults to the base name of <path>)")
	cmd.Flags().StringVar(&contentType, "content-type", "", "Content type (guessed from the extension when empty)")
	return cmd
}
