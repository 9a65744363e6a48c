package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/jwichpas/backend-project-admin-sub000/internal/service_registry"
	"github.com/jwichpas/backend-project-admin-sub000/internal/services"
	"github.com/jwichpas/backend-project-admin-sub000/internal/utils"
	"github.com/jwichpas/backend-project-admin-sub000/pkg/file"
	"github.com/jwichpas/backend-project-admin-sub000/pkg/identity"
	"github.com/jwichpas/backend-project-admin-sub000/pkg/invoicing"
)

const invoiceTimeout = time.Minute

func invoiceCommand() *cli.Command {
	return &cli.Command{
		Name:  "invoice",
		Usage: "issue and list electronic invoices",
		Subcommands: []*cli.Command{
			{
				Name:      "issue",
				Usage:     "submit the invoice in a JSON file, reserving a number when it has none",
				ArgsUsage: "FILE",
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return cli.Exit("expected the path of an invoice JSON file", 2)
					}
					var inv invoicing.Invoice
					if err := file.NewFileService().ReadJsonFile(c.Args().First(), &inv); err != nil {
						return fmt.Errorf("failed to read invoice: %w", err)
					}

					svc, companyID, err := invoiceService(c)
					if err != nil {
						return err
					}
					ctx, cancel := context.WithTimeout(c.Context, invoiceTimeout)
					defer cancel()

					rec, err := svc.Issue(ctx, companyID, inv)
					if err != nil {
						return err
					}
					printRecord(c, rec)
					if rec.Status != "accepted" {
						return cli.Exit(fmt.Sprintf("%s rejected: %s", rec.DocumentID, rec.SunatDescription), 1)
					}
					return nil
				},
			},
			{
				Name:  "history",
				Usage: "list the latest recorded invoices",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 20},
				},
				Action: func(c *cli.Context) error {
					svc, companyID, err := invoiceService(c)
					if err != nil {
						return err
					}
					ctx, cancel := context.WithTimeout(c.Context, invoiceTimeout)
					defer cancel()

					records, err := svc.History(ctx, companyID, c.Int("limit"))
					if err != nil {
						return err
					}
					for _, rec := range records {
						printRecord(c, rec)
					}
					return nil
				},
			},
		},
	}
}

func invoiceService(c *cli.Context) (*services.InvoiceService, string, error) {
	config, logger, deviceInfo, fileClient, err := setup(c)
	if err != nil {
		return nil, "", err
	}
	svc := service_registry.NewServiceRegistry(fileClient, logger).BuildInvoicing(config, deviceInfo)
	if svc == nil {
		return nil, "", cli.Exit("invoicing is not configured (backend url and invoicing credentials are required)", 1)
	}
	return svc, companyOf(config, deviceInfo), nil
}

// companyOf prefers the configured company over the one in the identity file.
func companyOf(config *utils.Config, deviceInfo identity.DeviceInfoInterface) string {
	if config.Backend.CompanyID != "" {
		return config.Backend.CompanyID
	}
	return deviceInfo.GetCompanyID()
}

func printRecord(c *cli.Context, rec services.InvoiceRecord) {
	fmt.Fprintf(c.App.Writer, "%s  %s  %-8s  %s %.2f  %s\n",
		rec.DocumentID, rec.IssueDate, rec.Status, rec.Currency, rec.Total, rec.CustomerName)
}
