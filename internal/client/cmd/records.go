package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cli/browser"
	"github.com/spf13/cobra"

	"immun/internal/client/api"
	"immun/internal/dashboard"
	"immun/internal/shared/models"
)

// errUploadFailed is returned once the rendered view has shown the reason.
var errUploadFailed = errors.New("record was not uploaded")

func newRecordsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{Use: "records", Short: "Your immunization records"}
	cmd.AddCommand(newRecordsListCmd(c))
	cmd.AddCommand(newRecordsUploadCmd(c))
	cmd.AddCommand(newRecordsDocumentCmd(c))
	return cmd
}

func newRecordsListCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List your records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			auth, err := c.authContext()
			if err != nil {
				return err
			}
			shell := dashboard.NewUserDashboard(auth, c.apiClient(auth.Token), c.dashboardOptions()...)
			defer shell.Close()
			loadErr := shell.Mount(cmd.Context())
			renderView(cmd.OutOrStdout(), shell.View())
			return loadErr
		},
	}
}

type uploadFlags struct {
	vaccine  string
	date     string
	nextDue  string
	provider string
	file     string
}

// apply copies the flags into draft. Unset optional flags leave the draft
// fields absent.
func (f uploadFlags) apply(d *models.UploadDraft) error {
	d.VaccineName = f.vaccine
	d.Provider = f.provider
	if f.date != "" {
		date, err := models.ParseDate(f.date)
		if err != nil {
			return fmt.Errorf("--date: %w", err)
		}
		d.DateAdministered = date
	}
	if f.nextDue != "" {
		next, err := models.ParseDate(f.nextDue)
		if err != nil {
			return fmt.Errorf("--next-due: %w", err)
		}
		d.NextDueDate = &next
	}
	if f.file != "" {
		if _, err := os.Stat(f.file); err != nil {
			return fmt.Errorf("--file: %w", err)
		}
		d.Attachment = models.FileAttachment(f.file)
	}
	return nil
}

func newRecordsUploadCmd(c *cli) *cobra.Command {
	var flags uploadFlags
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload a new record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			auth, err := c.authContext()
			if err != nil {
				return err
			}
			shell := dashboard.NewUserDashboard(auth, c.apiClient(auth.Token), c.dashboardOptions()...)
			defer shell.Close()

			upload := shell.Upload()
			if err := upload.Open(); err != nil {
				return err
			}
			var applyErr error
			if err := upload.Update(func(d *models.UploadDraft) { applyErr = flags.apply(d) }); err != nil {
				return err
			}
			if applyErr != nil {
				return applyErr
			}
			if !upload.CanSubmit() {
				return dashboard.ErrDraftIncomplete
			}
			submitErr := upload.Submit(cmd.Context())
			renderView(cmd.OutOrStdout(), shell.View())
			if submitErr != nil {
				c.logger.Debug("upload record", "error", submitErr)
				return errUploadFailed
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&flags.vaccine, "vaccine", "", "Vaccine name (required)")
	cmd.Flags().StringVar(&flags.date, "date", "", "Date administered, YYYY-MM-DD (required)")
	cmd.Flags().StringVar(&flags.nextDue, "next-due", "", "Next due date, YYYY-MM-DD")
	cmd.Flags().StringVar(&flags.provider, "provider", "", "Provider")
	cmd.Flags().StringVar(&flags.file, "file", "", "Document to attach (pdf, png, jpg)")
	return cmd
}

func newRecordsDocumentCmd(c *cli) *cobra.Command {
	var (
		open   bool
		output string
	)
	cmd := &cobra.Command{
		Use:   "document <record-id>",
		Short: "Show, open or download a record's document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if open && output != "" {
				return errors.New("--open and --output are mutually exclusive")
			}
			auth, err := c.authContext()
			if err != nil {
				return err
			}
			client := c.apiClient(auth.Token)
			id := models.ID(args[0])
			switch {
			case output != "":
				return downloadDocument(cmd, client, id, output)
			case open:
				return c.openURL(client.DocumentURL(id))
			default:
				printf(cmd.OutOrStdout(), "%s\n", client.DocumentURL(id))
				return nil
			}
		},
	}
	cmd.Flags().BoolVar(&open, "open", false, "Open the document in a browser")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Save the document to a file (- for stdout)")
	return cmd
}

func downloadDocument(cmd *cobra.Command, client *api.Client, id models.ID, output string) error {
	doc, err := client.FetchDocument(cmd.Context(), id)
	if err != nil {
		return err
	}
	defer doc.Body.Close()

	if output == "-" {
		_, err := io.Copy(cmd.OutOrStdout(), doc.Body)
		return err
	}
	f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	n, err := io.Copy(f, doc.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", output, err)
	}
	printf(cmd.ErrOrStderr(), "Saved %d bytes to %s\n", n, output)
	return nil
}

func openInBrowser(url string) error {
	return browser.OpenURL(url)
}
