package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeSchemaFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

const personSchema = `
name: person
description: a human being mentioned in an episode
fields:
  - name: full_name
    type: string
    required: true
  - name: role
    type: string
    required: false
`

const companySchema = `
name: company
description: an organization mentioned in an episode
fields:
  - name: legal_name
    type: string
    required: true
`

func TestLoad_RegistersSchemaShapedDocuments(t *testing.T) {
	dir := t.TempDir()
	writeSchemaFile(t, dir, "person.yaml", personSchema)
	writeSchemaFile(t, dir, "company.yaml", companySchema)

	reg, err := Load(zap.NewNop(), []Source{{Dir: dir}}, false, "")

	require.NoError(t, err)
	assert.Equal(t, []string{"company", "person"}, reg.Names())
}

func TestLoad_SkipsDocumentsMissingDescriptionOrFields(t *testing.T) {
	dir := t.TempDir()
	writeSchemaFile(t, dir, "incomplete.yaml", "name: incomplete\n")

	reg, err := Load(zap.NewNop(), []Source{{Dir: dir}}, false, "")

	require.NoError(t, err)
	assert.Empty(t, reg.Names())
}

func TestLoad_SourceReplacesRootOnNameCollision(t *testing.T) {
	rootDir := t.TempDir()
	writeSchemaFile(t, rootDir, "person.yaml", personSchema)

	overrideDir := t.TempDir()
	writeSchemaFile(t, overrideDir, "person.yaml", `
name: person
description: overridden person definition
fields:
  - name: nickname
    type: string
    required: true
`)

	reg, err := Load(zap.NewNop(), []Source{{Dir: overrideDir}}, true, rootDir)

	require.NoError(t, err)
	all := reg.All()
	require.Contains(t, all, "person")
	assert.Equal(t, "overridden person definition", all["person"].Description)
}

func TestLoad_UnreadableSourceDirIsSkippedNotFatal(t *testing.T) {
	reg, err := Load(zap.NewNop(), []Source{{Dir: "/nonexistent/does-not-exist"}}, false, "")

	require.NoError(t, err)
	assert.Empty(t, reg.Names())
}

func TestSubset_OmitsUnknownNames(t *testing.T) {
	dir := t.TempDir()
	writeSchemaFile(t, dir, "person.yaml", personSchema)
	reg, err := Load(zap.NewNop(), []Source{{Dir: dir}}, false, "")
	require.NoError(t, err)

	subset := reg.Subset([]string{"person", "ghost"})

	assert.Len(t, subset, 1)
	assert.Contains(t, subset, "person")
}

func TestResolveRoots_SelectorNamesImmediateSubdirectories(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "people"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "orgs"), 0o755))
	writeSchemaFile(t, filepath.Join(dir, "people"), "person.yaml", personSchema)
	writeSchemaFile(t, filepath.Join(dir, "orgs"), "company.yaml", companySchema)

	reg, err := Load(zap.NewNop(), []Source{{Dir: dir, Selector: "people"}}, false, "")

	require.NoError(t, err)
	assert.Equal(t, []string{"person"}, reg.Names())
}
