package commands

import (
	"context"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/marmos91/dittosftp/internal/cli/output"
	"github.com/marmos91/dittosftp/pkg/config"
	"github.com/marmos91/dittosftp/pkg/tenant"
)

var (
	tenantsOutput string
	tenantsUsage  bool
)

var tenantsCmd = &cobra.Command{
	Use:   "tenants",
	Short: "Inspect tenant definitions",
}

var tenantsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tenant definitions",
	Long: `List the tenants defined in tenants.dir.

Invalid definition files are skipped with a warning, exactly as the running
gateway would skip them.

Examples:
  # Table output
  dittosftp tenants list

  # Include current disk usage (walks every tenant root)
  dittosftp tenants list --usage

  # JSON output
  dittosftp tenants list -o json`,
	RunE: runTenantsList,
}

func init() {
	tenantsListCmd.Flags().StringVarP(&tenantsOutput, "output", "o", "table", "Output format (table|json|yaml)")
	tenantsListCmd.Flags().BoolVar(&tenantsUsage, "usage", false, "Compute disk usage for each tenant")
	tenantsCmd.AddCommand(tenantsListCmd)
}

// tenantInfo is the structured form of one listed tenant.
type tenantInfo struct {
	ID        string `json:"id" yaml:"id"`
	Root      string `json:"root" yaml:"root"`
	UID       int    `json:"uid" yaml:"uid"`
	DiskQuota int64  `json:"disk_quota" yaml:"disk_quota"`
	DiskUsed  *int64 `json:"disk_used,omitempty" yaml:"disk_used,omitempty"`
	Suspended bool   `json:"suspended" yaml:"suspended"`
}

// tenantList renders tenants as a table or as structured data.
type tenantList []tenantInfo

func (l tenantList) Headers() []string {
	return []string{"ID", "Root", "UID", "Disk Quota", "Disk Used", "Suspended"}
}

func (l tenantList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, t := range l {
		quota := "unlimited"
		if t.DiskQuota > 0 {
			quota = humanize.IBytes(uint64(t.DiskQuota))
		}
		used := "-"
		if t.DiskUsed != nil {
			used = humanize.IBytes(uint64(*t.DiskUsed))
		}
		rows = append(rows, []string{
			t.ID, t.Root, strconv.Itoa(t.UID), quota, used, strconv.FormatBool(t.Suspended),
		})
	}
	return rows
}

func (l tenantList) Alignments() []int {
	return []int{output.AlignLeft, output.AlignLeft, output.AlignRight, output.AlignRight, output.AlignRight}
}

func (l tenantList) EmptyMessage() string {
	return "No tenants defined."
}

func (l tenantList) Data() any {
	return []tenantInfo(l)
}

func runTenantsList(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(tenantsOutput)
	if err != nil {
		return err
	}

	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return err
	}

	registry := tenant.NewRegistry()
	if err := tenant.NewLoader(cfg.Tenants.Dir, registry, nil).Load(); err != nil {
		return err
	}

	list := make(tenantList, 0, registry.Len())
	for _, srv := range registry.List() {
		info := tenantInfo{
			ID:        srv.ID(),
			Root:      srv.Root(),
			UID:       srv.UID(),
			DiskQuota: srv.DiskQuota(),
			Suspended: srv.Suspended(),
		}
		if tenantsUsage {
			if used, err := srv.Filesystem().DiskUsage(context.Background()); err == nil {
				info.DiskUsed = &used
			}
		}
		list = append(list, info)
	}

	return output.Print(cmd.OutOrStdout(), format, list)
}
