package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"gagyebu/internal/core"
	"gagyebu/internal/log"
	"gagyebu/internal/ocr"
)

type receiptOptions struct {
	server   string
	token    string
	timeout  time.Duration
	attempts uint
	output   string
	verbose  bool
}

// NewReceiptCommand builds the receiptctl command tree.
func NewReceiptCommand(version string) *cobra.Command {
	opts := &receiptOptions{}

	root := &cobra.Command{
		Use:   "receiptctl",
		Short: "Send receipt images to an OCR endpoint and print what it read",
		Long: `receiptctl posts receipt images to a POST /api/v1/ocr endpoint, either
the OCR backend itself or a running gagyebu server, and prints the
extracted store, date, amount and payment method together with the
transaction draft the review screen would prefill.

Examples:
  receiptctl analyze receipt.jpg
  receiptctl analyze --server http://localhost:8081 -o json *.jpg`,
		Version:      version,
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	root.PersistentFlags().StringVar(&opts.server, "server", os.Getenv("OCR_BASE_URL"), "OCR endpoint base URL (env OCR_BASE_URL)")
	root.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("OCR_API_TOKEN"), "bearer token (env OCR_API_TOKEN)")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 60*time.Second, "per-request timeout")
	root.PersistentFlags().UintVar(&opts.attempts, "attempts", 3, "attempts on transport errors and 5xx answers")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", "table", "output format: table or json")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log requests to stderr")

	root.AddCommand(newAnalyzeCommand(opts))
	return root
}

// analyzedReceipt is one line of receiptctl output.
type analyzedReceipt struct {
	File   string                `json:"file"`
	Result core.AnalysisResult   `json:"result"`
	Failed bool                  `json:"failed"`
	Draft  core.TransactionDraft `json:"draft"`
}

func newAnalyzeCommand(opts *receiptOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze FILE...",
		Short: "Analyze receipt images",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.server == "" {
				return fmt.Errorf("--server or OCR_BASE_URL is required")
			}
			if opts.output != "table" && opts.output != "json" {
				return fmt.Errorf("unknown output format %q", opts.output)
			}

			files, err := readReceipts(args)
			if err != nil {
				return err
			}

			logger := log.Discard()
			if opts.verbose {
				logger = log.New(log.Config{Level: log.ParseLevel("debug"), Output: cmd.ErrOrStderr(), Component: log.ComponentOCR})
			}
			client := ocr.NewClient(ocr.ClientConfig{
				BaseURL:     opts.server,
				Token:       opts.token,
				Timeout:     opts.timeout,
				MaxAttempts: max(opts.attempts, 1),
				Logger:      logger,
			})

			results, err := client.Analyze(cmd.Context(), files)
			if err != nil {
				return err
			}
			if len(results) != len(files) {
				return fmt.Errorf("%w: %d results for %d files", ocr.ErrAnalysisFailed, len(results), len(files))
			}

			out := make([]analyzedReceipt, len(files))
			for i, r := range results {
				out[i] = analyzedReceipt{File: files[i].Name, Result: r, Failed: r.Failed(), Draft: core.DraftFromResult(r)}
			}
			if opts.output == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}
			return printReceipts(cmd.OutOrStdout(), out)
		},
	}
}

// readReceipts loads the files, guessing the content type from the extension.
func readReceipts(paths []string) ([]core.ReceiptFile, error) {
	files := make([]core.ReceiptFile, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read receipt: %w", err)
		}
		f := core.ReceiptFile{
			Name:        filepath.Base(p),
			ContentType: mime.TypeByExtension(filepath.Ext(p)),
			Data:        data,
		}
		if !f.IsImage() {
			return nil, fmt.Errorf("%s is not an image", p)
		}
		files = append(files, f)
	}
	return files, nil
}

func printReceipts(w io.Writer, receipts []analyzedReceipt) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tSTORE\tDATE\tAMOUNT\tMETHOD\tCATEGORY\tSTATUS")
	for _, r := range receipts {
		status := "ok"
		if r.Failed {
			status = "failed"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.File, r.Result.StoreName, r.Result.Date, core.FormatWon(r.Draft.Amount),
			r.Draft.Method, r.Draft.Category, status)
	}
	return tw.Flush()
}
