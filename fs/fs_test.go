package appfs_test

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saidstrong/nuet-prep-academy-sub001/core"
	appfs "github.com/saidstrong/nuet-prep-academy-sub001/fs"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

func TestFS_emailLayouts(t *testing.T) {
	for _, name := range []string{"_base.txt", "_base.gohtml"} {
		_, err := fs.Stat(appfs.FS, "assets/templates/email/"+name)
		assert.NoError(t, err, name)
	}
}

func TestFS_emailTemplatesRender(t *testing.T) {
	core.ParseEmailTemplates(core.NewTestConfig(), appfs.FS, nopLogger{})

	tests := []struct {
		name string
		data map[string]interface{}
		want string
	}{
		{
			name: "enrollment_activated",
			data: map[string]interface{}{"Name": "Aruzhan", "CourseTitle": "Maths", "CourseID": "c1"},
			want: `Your enrollment in "Maths" is now active.`,
		},
		{
			name: "attempt_result",
			data: map[string]interface{}{
				"Name": "Aruzhan", "TestTitle": "Mock 1", "AutoSubmitted": false,
				"Score": 2, "MaxScore": 3, "Percent": 66.67, "Passed": true, "AttemptID": "a1",
			},
			want: "Score: 2 / 3 (66.67%)",
		},
		{
			name: "results_export",
			data: map[string]interface{}{"TestTitle": "Mock 1", "Count": 4},
			want: `"Mock 1" (4 submitted attempts)`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := &core.EmailMessage{TemplateName: tt.name, TemplateData: tt.data}
			require.NoError(t, msg.Render())
			assert.Contains(t, msg.TextContent, tt.want)
			assert.Contains(t, msg.TextContent, "The "+core.NewTestConfig().AppName+" team")
		})
	}
}
