package mcpgen

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var searchSpec = ToolSpec{
	Name:   "transformation_hasTransformation_tool",
	Method: "GET",
	Path:   "/transformation/hasTransformation",
	Params: []Param{
		{Name: "inputMetamodel", In: InQuery, Required: true},
		{Name: "outputMetamodel", In: InQuery},
	},
}

var addSpec = ToolSpec{
	Name:   "post_transformation_add_tool",
	Method: "POST",
	Path:   "/transformation/add",
	Params: []Param{
		{Name: "name", In: InBody, Required: true},
		{Name: "description", In: InBody},
	},
}

var applySpec = ToolSpec{
	Name:      "post_transformation_Name_apply_tool",
	Method:    "POST",
	Path:      "/transformation/{Name}/apply",
	FileField: "IN",
	Params: []Param{
		{Name: "Name", In: InPath, Required: true},
		{Name: FileArg, In: InFile, Required: true},
	},
}

func TestRequestURL(t *testing.T) {
	u := RequestURL("http://backend/", applySpec, map[string]string{"Name": "Families 2/Persons"})
	assert.Equal(t, "http://backend/transformation/Families%202%2FPersons/apply", u)

	u = RequestURL("http://backend", searchSpec, map[string]string{"inputMetamodel": "UML", "outputMetamodel": ""})
	assert.Equal(t, "http://backend/transformation/hasTransformation?inputMetamodel=UML", u)

	u = RequestURL("http://backend", searchSpec, map[string]string{"inputMetamodel": "A&B", "outputMetamodel": "C"})
	assert.Equal(t, "http://backend/transformation/hasTransformation?inputMetamodel=A%26B&outputMetamodel=C", u)
}

func TestDispatcher_Query(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/transformation/hasTransformation", r.URL.Path)
		assert.Equal(t, "UML", r.URL.Query().Get("inputMetamodel"))
		io.WriteString(w, `["UML2KM3"]`)
	}))
	defer srv.Close()

	out, err := NewDispatcher(srv.URL).Call(context.Background(), searchSpec, map[string]string{"inputMetamodel": "UML"})
	require.NoError(t, err)
	assert.Equal(t, `["UML2KM3"]`, out)
}

func TestDispatcher_FormBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "A2B", r.PostForm.Get("name"))
		assert.False(t, r.PostForm.Has("description"))
		io.WriteString(w, "added")
	}))
	defer srv.Close()

	out, err := NewDispatcher(srv.URL).Call(context.Background(), addSpec, map[string]string{"name": "A2B"})
	require.NoError(t, err)
	assert.Equal(t, "added", out)
}

func TestDispatcher_MultipartUpload(t *testing.T) {
	model := filepath.Join(t.TempDir(), "sample-Families.xmi")
	require.NoError(t, os.WriteFile(model, []byte("<xmi/>"), 0o644))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transformation/Families2Persons/apply", r.URL.Path)
		f, hdr, err := r.FormFile("IN")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "sample-Families.xmi", hdr.Filename)
		assert.Equal(t, "<xmi/>", string(data))
		io.WriteString(w, "<persons/>")
	}))
	defer srv.Close()

	out, err := NewDispatcher(srv.URL).Call(context.Background(), applySpec, map[string]string{
		"Name":  "Families2Persons",
		FileArg: model,
	})
	require.NoError(t, err)
	assert.Equal(t, "<persons/>", out)
}

func TestDispatcher_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "transformation not found", http.StatusNotFound)
	}))
	defer srv.Close()
	d := NewDispatcher(srv.URL)

	_, err := d.Call(context.Background(), searchSpec, map[string]string{})
	assert.ErrorIs(t, err, ErrMissingArgument)

	out, err := d.Call(context.Background(), searchSpec, map[string]string{"inputMetamodel": "X"})
	assert.ErrorIs(t, err, ErrBackendStatus)
	assert.Contains(t, out, "transformation not found")

	_, err = d.Call(context.Background(), applySpec, map[string]string{"Name": "A2B", FileArg: "/does/not/exist.xmi"})
	assert.Error(t, err)
}

func TestDispatcher_RateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	d := NewDispatcher(srv.URL, WithRateLimit(1))
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	args := map[string]string{"inputMetamodel": "X"}
	_, err := d.Call(ctx, searchSpec, args)
	require.NoError(t, err)
	_, err = d.Call(ctx, searchSpec, args)
	assert.Error(t, err)
}

func TestBuildCurlArgs(t *testing.T) {
	args := BuildCurlArgs("http://backend", applySpec, map[string]string{"Name": "A2B", FileArg: "./m.xmi"})
	assert.Equal(t, []string{"-s", "-X", "POST", "-F", "IN=@./m.xmi", "http://backend/transformation/A2B/apply"}, args)

	args = BuildCurlArgs("http://backend", addSpec, map[string]string{"name": "A2B", "description": "d"})
	assert.Equal(t, []string{"-s", "-X", "POST", "-d", "name=A2B", "-d", "description=d", "http://backend/transformation/add"}, args)

	args = BuildCurlArgs("http://backend", searchSpec, map[string]string{"inputMetamodel": "UML"})
	assert.Equal(t, []string{"-s", "-X", "GET", "http://backend/transformation/hasTransformation?inputMetamodel=UML"}, args)
}

func TestDispatcher_Curl(t *testing.T) {
	bin, err := exec.LookPath("curl")
	if err != nil {
		t.Skip("curl not installed")
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, r.URL.Query().Get("inputMetamodel"))
	}))
	defer srv.Close()

	out, err := NewDispatcher(srv.URL, WithCurl(bin)).Call(context.Background(), searchSpec, map[string]string{"inputMetamodel": "KM3"})
	require.NoError(t, err)
	assert.Equal(t, "KM3", out)
}
