package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/careerforge/careerforge/internal/api/middleware"
	"github.com/spf13/cobra"
)

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development bearer token signed with JWT_SECRET",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			if len(a.cfg.JWTSecret) < 32 {
				return errors.New("JWT_SECRET must be set and at least 32 characters")
			}
			f := cmd.Flags()
			user, _ := f.GetString("user")
			role, _ := f.GetString("role")
			ttl, _ := f.GetDuration("ttl")

			tok, err := middleware.IssueToken(middleware.JWTOptions{
				Secret: a.cfg.JWTSecret,
				Issuer: a.cfg.JWTIssuer,
			}, user, role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	f := cmd.Flags()
	f.String("user", "", "Subject user id (required)")
	f.String("role", "student", "Role claim (student, alumni, admin)")
	f.Duration("ttl", 24*time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
