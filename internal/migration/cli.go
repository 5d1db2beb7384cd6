package migration

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
)

// CLI 把迁移操作的结果渲染为文本，供 lessonpipe migrate 使用
type CLI struct {
	migrator Migrator
	out      io.Writer
}

// NewCLI creates a CLI writing to stdout.
func NewCLI(migrator Migrator) *CLI {
	return &CLI{migrator: migrator, out: os.Stdout}
}

// SetOutput redirects all CLI output.
func (c *CLI) SetOutput(w io.Writer) {
	c.out = w
}

// =============================================================================
// ✏️ 变更型操作
// =============================================================================

// RunUp applies every pending migration.
func (c *CLI) RunUp(ctx context.Context) error {
	return c.apply(ctx, "up", c.migrator.Up)
}

// RunDown rolls back one migration.
func (c *CLI) RunDown(ctx context.Context) error {
	return c.apply(ctx, "down", c.migrator.Down)
}

// RunSteps applies (n > 0) or rolls back (n < 0) n migrations.
func (c *CLI) RunSteps(ctx context.Context, n int) error {
	return c.apply(ctx, fmt.Sprintf("steps %+d", n), func(ctx context.Context) error {
		return c.migrator.Steps(ctx, n)
	})
}

// RunForce records version as applied and clears the dirty flag.
func (c *CLI) RunForce(ctx context.Context, version int) error {
	return c.apply(ctx, fmt.Sprintf("force %d", version), func(ctx context.Context) error {
		return c.migrator.Force(ctx, version)
	})
}

// apply 执行操作后打印当前 schema 版本
func (c *CLI) apply(ctx context.Context, action string, op func(context.Context) error) error {
	if err := op(ctx); err != nil {
		return fmt.Errorf("migrate %s: %w", action, err)
	}
	version, dirty, err := c.migrator.Version(ctx)
	if err != nil {
		return fmt.Errorf("migrate %s: read version: %w", action, err)
	}
	fmt.Fprintf(c.out, "migrate %s: done, schema version %d%s\n", action, version, dirtySuffix(dirty))
	return nil
}

// =============================================================================
// 🔍 只读操作
// =============================================================================

// RunVersion prints the current schema version.
func (c *CLI) RunVersion(ctx context.Context) error {
	version, dirty, err := c.migrator.Version(ctx)
	if err != nil {
		return fmt.Errorf("read version: %w", err)
	}
	if version == 0 && !dirty {
		fmt.Fprintln(c.out, "schema version: none (no migrations applied)")
		return nil
	}
	fmt.Fprintf(c.out, "schema version: %d%s\n", version, dirtySuffix(dirty))
	return nil
}

// RunStatus prints one row per known migration and a summary line.
func (c *CLI) RunStatus(ctx context.Context) error {
	statuses, err := c.migrator.Status(ctx)
	if err != nil {
		return fmt.Errorf("read status: %w", err)
	}
	if len(statuses) == 0 {
		fmt.Fprintln(c.out, "no migrations embedded for this database")
		return nil
	}

	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tNAME\tSTATE")
	for _, s := range statuses {
		fmt.Fprintf(tw, "%06d\t%s\t%s\n", s.Version, s.Name, s.state())
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	info, err := c.migrator.Info(ctx)
	if err != nil {
		return fmt.Errorf("read info: %w", err)
	}
	fmt.Fprintf(c.out, "\n%d applied, %d pending, %d total\n",
		info.AppliedMigrations, info.PendingMigrations, info.TotalMigrations)
	return nil
}

// RunInfo prints the migration summary as key/value lines.
func (c *CLI) RunInfo(ctx context.Context) error {
	info, err := c.migrator.Info(ctx)
	if err != nil {
		return fmt.Errorf("read info: %w", err)
	}

	tw := tabwriter.NewWriter(c.out, 0, 4, 1, ' ', 0)
	fmt.Fprintf(tw, "version:\t%d\n", info.CurrentVersion)
	fmt.Fprintf(tw, "dirty:\t%t\n", info.Dirty)
	fmt.Fprintf(tw, "applied:\t%d\n", info.AppliedMigrations)
	fmt.Fprintf(tw, "pending:\t%d\n", info.PendingMigrations)
	fmt.Fprintf(tw, "total:\t%d\n", info.TotalMigrations)
	return tw.Flush()
}

func (s MigrationStatus) state() string {
	switch {
	case s.Dirty:
		return "dirty"
	case s.Applied:
		return "applied"
	default:
		return "pending"
	}
}

func dirtySuffix(dirty bool) string {
	if dirty {
		return " (dirty)"
	}
	return ""
}
