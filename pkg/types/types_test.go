package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTenantSpecEqualIgnoresID(t *testing.T) {
	a := TenantSpec{ID: "a", Workers: 2, Resources: ResourceSpec{Resources: map[string]Version{"p/n/t/r": "1"}}}
	b := TenantSpec{ID: "b", Workers: 2, Resources: ResourceSpec{Resources: map[string]Version{"p/n/t/r": "1"}}}
	assert.True(t, a.Equal(b))

	b.Workers = 3
	assert.False(t, a.Equal(b))
}

func TestResourceSpecEqual(t *testing.T) {
	tests := []struct {
		name  string
		a, b  ResourceSpec
		equal bool
	}{
		{
			name:  "nil and empty",
			a:     ResourceSpec{},
			b:     ResourceSpec{Resources: map[string]Version{}},
			equal: true,
		},
		{
			name:  "version change",
			a:     ResourceSpec{Resources: map[string]Version{"automatortypes/chef/cookbooks/base": "3"}},
			b:     ResourceSpec{Resources: map[string]Version{"automatortypes/chef/cookbooks/base": "4"}},
			equal: false,
		},
		{
			name: "format change",
			a: ResourceSpec{
				Resources: map[string]Version{"p/n/t/r": "1"},
				Formats:   map[string]ResourceFormat{"p/n/t": ResourceFormatFile},
			},
			b: ResourceSpec{
				Resources: map[string]Version{"p/n/t/r": "1"},
				Formats:   map[string]ResourceFormat{"p/n/t": ResourceFormatArchive},
			},
			equal: false,
		},
		{
			name:  "permission change",
			a:     ResourceSpec{Permissions: map[string]string{"p/n/t": "0755"}},
			b:     ResourceSpec{Permissions: map[string]string{"p/n/t": "0700"}},
			equal: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.equal, tt.a.Equal(tt.b))
		})
	}
}

func TestResourceSpecValidate(t *testing.T) {
	valid := ResourceSpec{
		Resources:   map[string]Version{"automatortypes/shell/scripts/setup.sh": "2"},
		Formats:     map[string]ResourceFormat{"automatortypes/shell/scripts": ResourceFormatFile},
		Permissions: map[string]string{"automatortypes/shell/scripts": "0755"},
	}
	assert.NoError(t, valid.Validate())

	assert.Error(t, ResourceSpec{Resources: map[string]Version{"too/short": "1"}}.Validate())
	assert.Error(t, ResourceSpec{Resources: map[string]Version{"a/b/c/d": ""}}.Validate())
	assert.Error(t, ResourceSpec{Resources: map[string]Version{"a/b/c/d": "../1"}}.Validate())
	assert.Error(t, ResourceSpec{Resources: map[string]Version{"a/b/c/d": ".."}}.Validate())
	assert.Error(t, ResourceSpec{Resources: map[string]Version{"a/../c/d": "1"}}.Validate())
	assert.Error(t, ResourceSpec{Resources: map[string]Version{"a/b/c/..": "1"}}.Validate())
	assert.Error(t, ResourceSpec{Resources: map[string]Version{"a/b//d": "1"}}.Validate())
	assert.Error(t, ResourceSpec{Formats: map[string]ResourceFormat{"a/b/c": "zip"}}.Validate())
	assert.Error(t, ResourceSpec{Permissions: map[string]string{"a/b/c": "rwx"}}.Validate())
}

func TestTenantSpecValidateID(t *testing.T) {
	tests := []struct {
		id    string
		valid bool
	}{
		{"t1", true},
		{"tenant_2.prod-eu", true},
		{"", false},
		{"..", false},
		{".", false},
		{"../etc", false},
		{"a/b", false},
		{"/abs", false},
		{"with space", false},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			err := TenantSpec{ID: tt.id, Workers: 1}.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestFormatAndPermissionLookup(t *testing.T) {
	spec := ResourceSpec{
		Formats:     map[string]ResourceFormat{"automatortypes/chef/cookbooks": ResourceFormatArchive},
		Permissions: map[string]string{"automatortypes/shell/scripts": "0755"},
	}

	assert.Equal(t, ResourceFormatArchive, spec.FormatOf("automatortypes/chef/cookbooks/base"))
	assert.Equal(t, ResourceFormatFile, spec.FormatOf("automatortypes/shell/scripts/setup.sh"))

	mode, ok := spec.PermissionOf("automatortypes/shell/scripts/setup.sh")
	require.True(t, ok)
	assert.Equal(t, uint32(0755), mode)

	_, ok = spec.PermissionOf("automatortypes/chef/cookbooks/base")
	assert.False(t, ok)

	assert.Equal(t, "automatortypes/chef/cookbooks", TypeOf("automatortypes/chef/cookbooks/base"))
	assert.Equal(t, "base", NameOf("automatortypes/chef/cookbooks/base"))
}

func TestVersionUnmarshalJSON(t *testing.T) {
	var spec TenantSpec
	body := `{"id":"t1","workers":2,"resources":{"resources":{"a/b/c/d":3,"a/b/c/e":"7"}}}`
	require.NoError(t, json.Unmarshal([]byte(body), &spec))

	assert.Equal(t, Version("3"), spec.Resources.Resources["a/b/c/d"])
	assert.Equal(t, Version("7"), spec.Resources.Resources["a/b/c/e"])

	var v Version
	assert.Error(t, json.Unmarshal([]byte(`{"x":1}`), &v))
}

func TestParseTenantSpecYAML(t *testing.T) {
	data := []byte(`
id: t2
workers: 3
resources:
  resources:
    automatortypes/chef/cookbooks/base: 4
  resourceFormats:
    automatortypes/chef/cookbooks: archive
`)
	spec, err := ParseTenantSpecYAML(data)
	require.NoError(t, err)
	assert.Equal(t, "t2", spec.ID)
	assert.Equal(t, 3, spec.Workers)
	assert.Equal(t, Version("4"), spec.Resources.Resources["automatortypes/chef/cookbooks/base"])
	assert.Equal(t, ResourceFormatArchive, spec.Resources.FormatOf("automatortypes/chef/cookbooks/base"))

	_, err = ParseTenantSpecYAML([]byte("workers: 1\n"))
	assert.Error(t, err)
}

func TestTaskConfigKeepsRawDocument(t *testing.T) {
	body := `{"taskId":"x1","taskName":"install","config":{"service":{"action":{"type":"shell","script":"echo hi"}},"custom":{"k":"v"}}}`

	var task Task
	require.NoError(t, json.Unmarshal([]byte(body), &task))
	assert.Equal(t, "x1", task.TaskID)
	require.NotNil(t, task.Config.Service)
	assert.Equal(t, "shell", task.Config.Service.Action.Type)
	assert.Contains(t, string(task.Config.Raw), `"custom"`)

	out, err := json.Marshal(task)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"custom":{"k":"v"}`)
}

func TestTaskResultStatus(t *testing.T) {
	assert.Equal(t, 0, TaskResult{ResultStatus: 0}.Status())
	assert.Equal(t, 1, TaskResult{ResultStatus: float64(1)}.Status())
	assert.Equal(t, -1, TaskResult{}.Status())
	assert.Equal(t, 1, FailureResult("out", "err").Status())
}
