package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/mmynk/splitwiser-pay/internal/models"
	"github.com/mmynk/splitwiser-pay/internal/signature"
)

func signCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sign [file]",
		Short: "Print the webhook signature for a request body (stdin when no file is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := webhookSecret(cmd)
			if err != nil {
				return err
			}

			var body []byte
			if len(args) == 1 && args[0] != "-" {
				body, err = os.ReadFile(args[0])
			} else {
				body, err = io.ReadAll(cmd.InOrStdin())
			}
			if err != nil {
				return fmt.Errorf("failed to read body: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), signature.Sign([]byte(secret), body))
			return nil
		},
	}

	cmd.Flags().String("secret", "", "Webhook secret (default WEBHOOK_SECRET)")
	return cmd
}

func sendWebhookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send-webhook [order_ref]",
		Short: "Send a signed payment notification for an order reference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := webhookSecret(cmd)
			if err != nil {
				return err
			}
			url, _ := cmd.Flags().GetString("url")
			if url == "" {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				url = cfg.NotifyURL()
			}
			event, _ := cmd.Flags().GetString("event")
			status, _ := cmd.Flags().GetString("status")
			paymentID, _ := cmd.Flags().GetString("payment-id")
			if paymentID == "" {
				paymentID = "CF_" + strconv.FormatInt(time.Now().UnixMilli(), 10)
			}
			unsigned, _ := cmd.Flags().GetBool("unsigned")

			body, err := webhookBody(event, args[0], status, paymentID)
			if err != nil {
				return err
			}

			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, url, bytes.NewReader(body))
			if err != nil {
				return fmt.Errorf("failed to build request: %w", err)
			}
			req.Header.Set("Content-Type", "application/json")
			if !unsigned {
				req.Header.Set(signature.Header, signature.Sign([]byte(secret), body))
			}

			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return fmt.Errorf("failed to send webhook: %w", err)
			}
			defer resp.Body.Close()
			respBody, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("failed to read response: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d %s\n", resp.StatusCode, bytes.TrimSpace(respBody))
			if resp.StatusCode >= 300 {
				return fmt.Errorf("webhook rejected with status %d", resp.StatusCode)
			}
			return nil
		},
	}

	cmd.Flags().String("url", "", "Webhook URL (default PUBLIC_BASE_URL + WEBHOOK_PATH)")
	cmd.Flags().String("secret", "", "Webhook secret (default WEBHOOK_SECRET)")
	cmd.Flags().String("event", models.EventPaymentSuccess, "Event type")
	cmd.Flags().String("status", string(models.PaymentSuccess), "Payment status")
	cmd.Flags().String("payment-id", "", "Processor payment ID (default generated)")
	cmd.Flags().Bool("unsigned", false, "Send without a signature header")
	return cmd
}

// webhookBody builds a notification in the processor's format.
func webhookBody(event, orderRef, status, paymentID string) ([]byte, error) {
	body := map[string]any{
		"event": event,
		"data": map[string]any{
			"payment": map[string]any{
				"order_id":       orderRef,
				"payment_status": status,
				"payment_id":     paymentID,
			},
		},
	}
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode webhook: %w", err)
	}
	return b, nil
}

func webhookSecret(cmd *cobra.Command) (string, error) {
	secret, _ := cmd.Flags().GetString("secret")
	if secret != "" {
		return secret, nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	if cfg.WebhookSecret == "" {
		if unsigned, _ := cmd.Flags().GetBool("unsigned"); unsigned {
			return "", nil
		}
		return "", errors.New("no webhook secret: pass --secret or set WEBHOOK_SECRET")
	}
	return cfg.WebhookSecret, nil
}
