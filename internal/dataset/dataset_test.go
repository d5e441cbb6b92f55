package dataset

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(instruction string, apis ...API) Record {
	return Record{Instruction: instruction, RelevantAPIs: apis}
}

func TestFilter_EmptyInstruction(t *testing.T) {
	accepted, rejected := Filter([]Record{rec("", API{APIName: "x", Arguments: "1"})})

	assert.Empty(t, accepted)
	require.Len(t, rejected, 1)
	assert.Equal(t, ReasonEmptyInstruction, rejected[0].Reason)
}

func TestFilter_MissingAPIName(t *testing.T) {
	accepted, rejected := Filter([]Record{rec("do X", API{APIName: "", Arguments: "1"})})

	assert.Empty(t, accepted)
	require.Len(t, rejected, 1)
	assert.Equal(t, ReasonNoValidAPI, rejected[0].Reason)
}

func TestFilter_MissingArguments(t *testing.T) {
	accepted, _ := Filter([]Record{rec("do X", API{APIName: "create_object"})})
	assert.Empty(t, accepted)
}

func TestFilter_KeepsOnlyValidAPIs(t *testing.T) {
	accepted, rejected := Filter([]Record{rec("do X",
		API{APIName: "create_object", Arguments: "abc123, Package"},
		API{APIName: "inspect_instance"},
	)})

	assert.Empty(t, rejected)
	require.Len(t, accepted, 1)
	assert.Equal(t, []API{{APIName: "create_object", Arguments: "abc123, Package"}}, accepted[0].RelevantAPIs)
}

func TestFilter_DuplicateWithinBatch(t *testing.T) {
	api := API{APIName: "x", Arguments: "1"}
	accepted, rejected := Filter([]Record{rec("same", api), rec("other", api), rec("same", api)})

	require.Len(t, accepted, 2)
	assert.Equal(t, "same", accepted[0].Instruction)
	assert.Equal(t, "other", accepted[1].Instruction)
	require.Len(t, rejected, 1)
	assert.Equal(t, ReasonDuplicate, rejected[0].Reason)
}

func TestFilter_DuplicateAgainstSeen(t *testing.T) {
	api := API{APIName: "x", Arguments: "1"}
	finalized := NewSet([]Record{rec("old", api)})
	remainder := make(Set)
	remainder.Add("pending")

	accepted, rejected := Filter([]Record{rec("old", api), rec("pending", api), rec("new", api)}, finalized, remainder)
	require.Len(t, accepted, 1)
	assert.Equal(t, "new", accepted[0].Instruction)
	assert.Len(t, rejected, 2)
}

func TestRecord_Preview(t *testing.T) {
	r := rec("line one\nline two")
	assert.Equal(t, "line one line", r.Preview(13))
	assert.Equal(t, "line one line two", r.Preview(60))
}

func TestCountBy(t *testing.T) {
	records := []Record{
		{Instruction: "a", Pattern: "apply>get", RelevantAPIs: []API{{APIName: "t1"}}},
		{Instruction: "b", Pattern: "apply>get", RelevantAPIs: []API{{APIName: "t2"}}},
		{Instruction: "c", Pattern: "get>get", RelevantAPIs: []API{{APIName: "t1"}}},
		{Instruction: "d"},
	}
	assert.Equal(t, map[string]int{"apply>get": 2, "get>get": 1}, CountBy(records, ByPattern))
	assert.Equal(t, map[string]int{"t1": 2, "t2": 1}, CountBy(records, ByTool))
}

func TestCheckpoint_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "remainder.json")
	want := []Record{
		{Instruction: "Create a Package & inspect it", RelevantAPIs: []API{{APIName: "create_object", Arguments: "abc123, Package"}}, Pattern: "modify>inspect"},
		{Instruction: "Apply Families2Persons", RelevantAPIs: []API{{APIName: "apply_Families2Persons_transformation_tool", Arguments: "sample.xmi"}}, WorkflowType: "atl_multi_tool"},
	}

	cp := OpenCheckpoint(path)
	assert.Equal(t, 0, cp.Len())
	for _, r := range want {
		cp.Append(r)
	}
	require.NoError(t, cp.Save())

	reloaded := OpenCheckpoint(path)
	if diff := cmp.Diff(want, reloaded.Records()); diff != "" {
		t.Errorf("reloaded records mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, reloaded.Contains("Apply Families2Persons"))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files left behind")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  {\n    \"instruction\"")
	assert.Contains(t, string(data), "Package & inspect")
}

func TestCheckpoint_CorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "remainder.json")
	require.NoError(t, os.WriteFile(path, []byte("[{\"instruction\": "), 0644))

	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	cp := OpenCheckpoint(path)
	assert.Equal(t, 0, cp.Len())
	assert.Contains(t, strings.ToLower(buf.String()), "warning")
}

func TestCheckpoint_MissingFileSilent(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	cp := OpenCheckpoint(filepath.Join(t.TempDir(), "none.json"))
	assert.Equal(t, 0, cp.Len())
	assert.Empty(t, buf.String())
}

func TestWriteFile_EmptyIsArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, WriteFile(path, nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(data))
}

func TestMergeFiles(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "dataset.json")
	rem := filepath.Join(dir, "remainder.json")
	api := API{APIName: "x", Arguments: "1"}

	require.NoError(t, WriteFile(out, []Record{rec("a", api), rec("b", api)}))
	require.NoError(t, WriteFile(rem, []Record{rec("b", api), rec("c", api)}))

	n, err := MergeFiles(out, rem)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	merged, err := ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, []string{merged[0].Instruction, merged[1].Instruction, merged[2].Instruction})
}

func TestValidateJSON(t *testing.T) {
	valid := `[{"instruction": "do X", "relevant_apis": [{"api_name": "x", "arguments": "1"}], "pattern": "get>get"}]`
	assert.NoError(t, ValidateJSON([]byte(valid)))

	missingAPIs := `[{"instruction": "do X", "relevant_apis": []}]`
	assert.Error(t, ValidateJSON([]byte(missingAPIs)))

	emptyName := `[{"instruction": "do X", "relevant_apis": [{"api_name": "", "arguments": "1"}]}]`
	assert.Error(t, ValidateJSON([]byte(emptyName)))

	assert.Error(t, ValidateJSON([]byte(`{"instruction": "x"}`)))
	assert.Error(t, ValidateJSON([]byte(`not json`)))
}

func TestValidateFile_WrittenDataset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dataset.json")
	require.NoError(t, WriteFile(path, []Record{rec("do X", API{APIName: "x", Arguments: "1"})}))
	assert.NoError(t, ValidateFile(path))
}
