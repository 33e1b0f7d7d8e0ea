package migrator

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/stagehand/stagehand/pkg/consts"
	"github.com/stagehand/stagehand/pkg/utils"
)

type (
	// Change is one schema change within a migration document. Exactly one
	// of the kind fields must be set; the document parser rejects anything
	// else. Each kind expands into an ordered list of phases, and phases are
	// what the executor applies, audits, and reverts one at a time.
	//
	// Example document fragment:
	//
	//	pre_deploy:
	//	  - add_column:
	//	      table: accounts
	//	      name: status
	//	      type: TEXT
	//	      nullable: false
	//	      backfill: "'active'"
	Change struct {
		CreateTable *CreateTable `yaml:"create_table,omitempty"`
		AddColumn   *AddColumn   `yaml:"add_column,omitempty"`
		AddIndex    *AddIndex    `yaml:"add_index,omitempty"`
		DropColumn  *DropColumn  `yaml:"drop_column,omitempty"`
		CreateView  *CreateView  `yaml:"create_view,omitempty"`
		RunDDL      *RunDDL      `yaml:"run_ddl,omitempty"`
	}

	// Phase is a single applyable unit: an ordered list of DDL statements
	// with an optional revert program. A nil Revert marks the phase
	// irreversible; an empty non-nil Revert reverts by doing nothing.
	Phase struct {
		Name   string   `yaml:"name"`
		Apply  []string `yaml:"apply"`
		Revert []string `yaml:"revert,omitempty"`
	}

	// CreateTable creates a new table in one phase. New tables are invisible
	// to running application code until it ships queries against them, so no
	// expand/contract staging is needed.
	CreateTable struct {
		Name       string   `yaml:"name"`
		Columns    []Column `yaml:"columns"`
		PrimaryKey []string `yaml:"primary_key,omitempty"`
	}

	// Column is a column definition within a create_table change. Type and
	// Default are raw SQL fragments. Columns are NOT NULL unless Nullable is
	// set.
	Column struct {
		Name     string `yaml:"name"`
		Type     string `yaml:"type"`
		Nullable bool   `yaml:"nullable,omitempty"`
		Default  string `yaml:"default,omitempty"`
	}

	// AddColumn adds a column through up to three phases: the column is
	// added nullable, existing rows are backfilled, and only then is the
	// NOT NULL constraint applied. Backfill and Default are raw SQL
	// expressions.
	AddColumn struct {
		Table    string `yaml:"table"`
		Name     string `yaml:"name"`
		Type     string `yaml:"type"`
		Nullable bool   `yaml:"nullable,omitempty"`
		Default  string `yaml:"default,omitempty"`
		Backfill string `yaml:"backfill,omitempty"`
	}

	// AddIndex builds an index concurrently in one phase. IF NOT EXISTS
	// keeps a resumed phase from failing when the index already completed.
	AddIndex struct {
		Table   string   `yaml:"table"`
		Name    string   `yaml:"name"`
		Columns []string `yaml:"columns"`
		Unique  bool     `yaml:"unique,omitempty"`
	}

	// DropColumn removes a column in one irreversible phase. It belongs in
	// the post-deploy stage of the revision after no code reads the column.
	DropColumn struct {
		Table string `yaml:"table"`
		Name  string `yaml:"name"`
	}

	// CreateView stages a view in the revision's shim schema and promotes it
	// into the target schema in a second phase, so readers only ever see the
	// finished object. Schema defaults to public.
	CreateView struct {
		Name   string `yaml:"name"`
		As     string `yaml:"as"`
		Schema string `yaml:"schema,omitempty"`
	}

	// RunDDL is the escape hatch: user-authored phases with verbatim
	// statements. The token {shim} in any statement is replaced with the
	// revision's shim schema name, letting custom changes stage objects the
	// same way create_view does.
	RunDDL struct {
		Name   string  `yaml:"name"`
		Phases []Phase `yaml:"phases"`
	}
)

// changeKind is implemented by each change variant.
type changeKind interface {
	kind() string
	summary() string
	validate() error
	phases(shim string) []Phase
}

// CanRevert reports whether the phase declares a revert program. An empty
// non-nil program counts as revertable.
func (p Phase) CanRevert() bool {
	return p.Revert != nil
}

// inner returns the single set variant, or nil if zero or multiple are set.
func (c *Change) inner() changeKind {
	var found changeKind
	count := 0
	if c.CreateTable != nil {
		found, count = c.CreateTable, count+1
	}
	if c.AddColumn != nil {
		found, count = c.AddColumn, count+1
	}
	if c.AddIndex != nil {
		found, count = c.AddIndex, count+1
	}
	if c.DropColumn != nil {
		found, count = c.DropColumn, count+1
	}
	if c.CreateView != nil {
		found, count = c.CreateView, count+1
	}
	if c.RunDDL != nil {
		found, count = c.RunDDL, count+1
	}
	if count != 1 {
		return nil
	}
	return found
}

// Kind returns the change's document key, e.g. "add_column".
func (c *Change) Kind() string {
	if k := c.inner(); k != nil {
		return k.kind()
	}
	return "invalid"
}

// Summary returns a short human-readable description for status output.
func (c *Change) Summary() string {
	if k := c.inner(); k != nil {
		return k.summary()
	}
	return "invalid change"
}

// Validate checks that exactly one kind is set and that the kind's own
// fields are well formed.
func (c *Change) Validate() error {
	k := c.inner()
	if k == nil {
		return errors.New("exactly one change kind must be set")
	}
	return k.validate()
}

// Phases expands the change into its ordered phases for the given revision.
// The revision number determines the shim schema name staged objects use.
// The change must validate first; Phases on an invalid change returns nil.
func (c *Change) Phases(revision int) []Phase {
	k := c.inner()
	if k == nil {
		return nil
	}
	return k.phases(consts.ShimSchemaName(revision))
}

func (c *CreateTable) kind() string { return "create_table" }

func (c *CreateTable) summary() string {
	return fmt.Sprintf("create table %q", c.Name)
}

func (c *CreateTable) validate() error {
	if !utils.IsValidIdentifier(c.Name) {
		return errors.Errorf("create_table: invalid table name %q", c.Name)
	}
	if len(c.Columns) == 0 {
		return errors.Errorf("create_table %q: at least one column is required", c.Name)
	}
	for _, col := range c.Columns {
		if !utils.IsValidIdentifier(col.Name) {
			return errors.Errorf("create_table %q: invalid column name %q", c.Name, col.Name)
		}
		if col.Type == "" {
			return errors.Errorf("create_table %q: column %q has no type", c.Name, col.Name)
		}
	}
	for _, pk := range c.PrimaryKey {
		if !utils.IsValidIdentifier(pk) {
			return errors.Errorf("create_table %q: invalid primary key column %q", c.Name, pk)
		}
	}
	return nil
}

func (c *CreateTable) phases(string) []Phase {
	defs := make([]string, 0, len(c.Columns)+1)
	for _, col := range c.Columns {
		defs = append(defs, col.render())
	}
	if len(c.PrimaryKey) > 0 {
		quoted := make([]string, len(c.PrimaryKey))
		for i, pk := range c.PrimaryKey {
			quoted[i] = utils.QuoteIdentifier(pk)
		}
		defs = append(defs, "PRIMARY KEY ("+strings.Join(quoted, ", ")+")")
	}

	return []Phase{{
		Name: "create table",
		Apply: []string{
			utils.NewSQLBuilder().
				Create("TABLE").
				Name(c.Name).
				Raw("(" + strings.Join(defs, ", ") + ")").
				String(),
		},
		Revert: []string{
			utils.NewSQLBuilder().Drop("TABLE").Name(c.Name).String(),
		},
	}}
}

// render produces the column definition fragment for CREATE TABLE.
func (col Column) render() string {
	def := utils.QuoteIdentifier(col.Name) + " " + col.Type
	if !col.Nullable {
		def += " NOT NULL"
	}
	if col.Default != "" {
		def += " DEFAULT " + col.Default
	}
	return def
}

func (c *AddColumn) kind() string { return "add_column" }

func (c *AddColumn) summary() string {
	return fmt.Sprintf("add column %q to %q", c.Name, c.Table)
}

func (c *AddColumn) validate() error {
	if !utils.IsValidIdentifier(c.Table) {
		return errors.Errorf("add_column: invalid table name %q", c.Table)
	}
	if !utils.IsValidIdentifier(c.Name) {
		return errors.Errorf("add_column: invalid column name %q", c.Name)
	}
	if c.Type == "" {
		return errors.Errorf("add_column %q.%q: type is required", c.Table, c.Name)
	}
	if !c.Nullable && c.Backfill == "" && c.Default == "" {
		return errors.Errorf(
			"add_column %q.%q: a NOT NULL column needs a backfill or default for existing rows",
			c.Table, c.Name,
		)
	}
	return nil
}

func (c *AddColumn) phases(string) []Phase {
	table := utils.QuoteIdentifier(c.Table)
	column := utils.QuoteIdentifier(c.Name)

	addDef := column + " " + c.Type
	if c.Default != "" {
		addDef += " DEFAULT " + c.Default
	}

	// The column always lands nullable first. NOT NULL arrives in its own
	// phase after the backfill, so a long UPDATE never runs under an
	// ACCESS EXCLUSIVE lock.
	phases := []Phase{{
		Name: "add column",
		Apply: []string{
			utils.NewSQLBuilder().Alter("TABLE").Name(c.Table).Raw("ADD COLUMN " + addDef).String(),
		},
		Revert: []string{
			utils.NewSQLBuilder().Alter("TABLE").Name(c.Table).Raw("DROP COLUMN " + column).String(),
		},
	}}

	if c.Backfill != "" {
		phases = append(phases, Phase{
			Name: "backfill",
			Apply: []string{
				fmt.Sprintf("UPDATE %s SET %s = %s WHERE %s IS NULL;", table, column, c.Backfill, column),
			},
			// Dropping the column undoes the backfill; reverting this phase
			// alone is a no-op.
			Revert: []string{},
		})
	}

	if !c.Nullable {
		phases = append(phases, Phase{
			Name: "set not null",
			Apply: []string{
				utils.NewSQLBuilder().Alter("TABLE").Name(c.Table).
					Raw("ALTER COLUMN " + column + " SET NOT NULL").String(),
			},
			Revert: []string{
				utils.NewSQLBuilder().Alter("TABLE").Name(c.Table).
					Raw("ALTER COLUMN " + column + " DROP NOT NULL").String(),
			},
		})
	}

	return phases
}

func (c *AddIndex) kind() string { return "add_index" }

func (c *AddIndex) summary() string {
	return fmt.Sprintf("create index %q on %q", c.Name, c.Table)
}

func (c *AddIndex) validate() error {
	if !utils.IsValidIdentifier(c.Table) {
		return errors.Errorf("add_index: invalid table name %q", c.Table)
	}
	if !utils.IsValidIdentifier(c.Name) {
		return errors.Errorf("add_index: invalid index name %q", c.Name)
	}
	if len(c.Columns) == 0 {
		return errors.Errorf("add_index %q: at least one column is required", c.Name)
	}
	for _, col := range c.Columns {
		if !utils.IsValidIdentifier(col) {
			return errors.Errorf("add_index %q: invalid column name %q", c.Name, col)
		}
	}
	return nil
}

func (c *AddIndex) phases(string) []Phase {
	objectType := "INDEX CONCURRENTLY"
	if c.Unique {
		objectType = "UNIQUE INDEX CONCURRENTLY"
	}

	return []Phase{{
		Name: "create index",
		Apply: []string{
			utils.NewSQLBuilder().
				Create(objectType).
				IfNotExists().
				Name(c.Name).
				On(c.Table).
				Columns(c.Columns...).
				String(),
		},
		Revert: []string{
			utils.NewSQLBuilder().Drop("INDEX CONCURRENTLY").IfExists().Name(c.Name).String(),
		},
	}}
}

func (c *DropColumn) kind() string { return "drop_column" }

func (c *DropColumn) summary() string {
	return fmt.Sprintf("drop column %q from %q", c.Name, c.Table)
}

func (c *DropColumn) validate() error {
	if !utils.IsValidIdentifier(c.Table) {
		return errors.Errorf("drop_column: invalid table name %q", c.Table)
	}
	if !utils.IsValidIdentifier(c.Name) {
		return errors.Errorf("drop_column: invalid column name %q", c.Name)
	}
	return nil
}

func (c *DropColumn) phases(string) []Phase {
	return []Phase{{
		Name: "drop column",
		Apply: []string{
			utils.NewSQLBuilder().Alter("TABLE").Name(c.Table).
				Raw("DROP COLUMN " + utils.QuoteIdentifier(c.Name)).String(),
		},
		// The data is gone; there is nothing to revert to.
		Revert: nil,
	}}
}

func (c *CreateView) kind() string { return "create_view" }

func (c *CreateView) summary() string {
	return fmt.Sprintf("create view %q", c.Name)
}

func (c *CreateView) targetSchema() string {
	if c.Schema != "" {
		return c.Schema
	}
	return "public"
}

func (c *CreateView) validate() error {
	if !utils.IsValidIdentifier(c.Name) {
		return errors.Errorf("create_view: invalid view name %q", c.Name)
	}
	if c.Schema != "" && !utils.IsValidIdentifier(c.Schema) {
		return errors.Errorf("create_view %q: invalid schema %q", c.Name, c.Schema)
	}
	if strings.TrimSpace(c.As) == "" {
		return errors.Errorf("create_view %q: as query is required", c.Name)
	}
	return nil
}

func (c *CreateView) phases(shim string) []Phase {
	target := c.targetSchema()

	return []Phase{
		{
			Name: "stage view",
			Apply: []string{
				utils.NewSQLBuilder().
					Create("VIEW").
					QualifiedName(&shim, c.Name).
					As(c.As).
					String(),
			},
			Revert: []string{
				utils.NewSQLBuilder().Drop("VIEW").IfExists().QualifiedName(&shim, c.Name).String(),
			},
		},
		{
			Name: "promote view",
			Apply: []string{
				utils.NewSQLBuilder().
					Alter("VIEW").
					QualifiedName(&shim, c.Name).
					SetSchema(target).
					String(),
			},
			Revert: []string{
				utils.NewSQLBuilder().
					Alter("VIEW").
					QualifiedName(&target, c.Name).
					SetSchema(shim).
					String(),
			},
		},
	}
}

func (c *RunDDL) kind() string { return "run_ddl" }

func (c *RunDDL) summary() string {
	return fmt.Sprintf("run ddl %q", c.Name)
}

func (c *RunDDL) validate() error {
	if c.Name == "" {
		return errors.New("run_ddl: name is required")
	}
	if len(c.Phases) == 0 {
		return errors.Errorf("run_ddl %q: at least one phase is required", c.Name)
	}
	for i, p := range c.Phases {
		if p.Name == "" {
			return errors.Errorf("run_ddl %q: phase %d has no name", c.Name, i)
		}
		if len(p.Apply) == 0 {
			return errors.Errorf("run_ddl %q: phase %q has no apply statements", c.Name, p.Name)
		}
	}
	return nil
}

func (c *RunDDL) phases(shim string) []Phase {
	out := make([]Phase, len(c.Phases))
	for i, p := range c.Phases {
		out[i] = Phase{
			Name:   p.Name,
			Apply:  substituteShim(p.Apply, shim),
			Revert: substituteShim(p.Revert, shim),
		}
	}
	return out
}

// substituteShim replaces the {shim} token in user statements, preserving
// the nil/non-nil distinction that marks irreversible phases.
func substituteShim(stmts []string, shim string) []string {
	if stmts == nil {
		return nil
	}
	out := make([]string, len(stmts))
	for i, s := range stmts {
		out[i] = strings.ReplaceAll(s, "{shim}", shim)
	}
	return out
}
