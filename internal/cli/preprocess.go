package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
	"text/template"

	"github.com/joho/godotenv"
)

// TemplateContext is the data input files are rendered with.
type TemplateContext struct {
	ENV map[string]string
}

var missingKeyRegex = regexp.MustCompile(`map has no entry for key "(.*?)"`)

// PreprocessYAML resolves {{ .ENV.VAR }} placeholders. Values come from the
// process environment, then from a .env file in the working directory. A
// placeholder with no value is an error.
func PreprocessYAML(input []byte) ([]byte, error) {
	env, err := templateEnv(".env")
	if err != nil {
		return nil, err
	}

	tmpl, err := template.New("input").Option("missingkey=error").Parse(string(input))
	if err != nil {
		return nil, fmt.Errorf("template error: %w", err)
	}

	var output bytes.Buffer
	if err := tmpl.Execute(&output, TemplateContext{ENV: env}); err != nil {
		if m := missingKeyRegex.FindStringSubmatch(err.Error()); len(m) == 2 {
			return nil, fmt.Errorf("missing environment variable: %s (set it in your shell or .env file)", m[1])
		}
		return nil, fmt.Errorf("template error: %w", err)
	}
	return output.Bytes(), nil
}

// templateEnv merges dotenvPath under the process environment.
func templateEnv(dotenvPath string) (map[string]string, error) {
	env, err := godotenv.Read(dotenvPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("unable to read %s: %w", dotenvPath, err)
		}
		env = map[string]string{}
	}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env, nil
}
