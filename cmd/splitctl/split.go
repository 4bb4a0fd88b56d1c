package main

import (
	"errors"
	"fmt"
	"net/http"

	"connectrpc.com/connect"
	"github.com/spf13/cobra"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/mmynk/splitwiser-pay/internal/auth"
	"github.com/mmynk/splitwiser-pay/internal/service"
)

func showSplitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show-split [split_id]",
		Short: "Print a split document with its members' payment state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			server, _ := cmd.Flags().GetString("server")
			if server == "" {
				server = cfg.PublicBaseURL
			}
			token, _ := cmd.Flags().GetString("token")
			if token == "" {
				if cfg.JWTSecret == "" {
					return errors.New("no token: pass --token or set JWT_SECRET")
				}
				token, err = auth.NewJWTManager(cfg.JWTSecret, cfg.JWTTTL).Generate("splitctl")
				if err != nil {
					return err
				}
			}

			client := service.NewPaymentServiceClient(http.DefaultClient, server,
				connect.WithInterceptors(service.BearerToken(token)),
			)
			req, err := structpb.NewStruct(map[string]any{"split_id": args[0]})
			if err != nil {
				return err
			}
			resp, err := client.GetSplit(cmd.Context(), connect.NewRequest(req))
			if err != nil {
				return fmt.Errorf("failed to get split %s: %w", args[0], err)
			}

			out, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(resp.Msg)
			if err != nil {
				return fmt.Errorf("failed to format split: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	cmd.Flags().String("server", "", "Service base URL (default PUBLIC_BASE_URL)")
	cmd.Flags().String("token", "", "Service token (default: minted from JWT_SECRET)")
	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a service token for the payment RPC API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			caller, _ := cmd.Flags().GetString("caller")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			if ttl == 0 {
				ttl = cfg.JWTTTL
			}

			token, err := auth.NewJWTManager(cfg.JWTSecret, ttl).Generate(caller)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().String("caller", "splitctl", "Caller name recorded in the token")
	cmd.Flags().Duration("ttl", 0, "Token lifetime (default JWT_TTL)")
	return cmd
}
