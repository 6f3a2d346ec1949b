package stylepipe

import (
	"encoding/json"
	"errors"
	"io"
	"time"
)

// JSONOutput represents the structured JSON export schema
type JSONOutput struct {
	Version   string      `json:"version"`
	Timestamp string      `json:"timestamp"`
	Summary   JSONSummary `json:"summary"`
	Written   []string    `json:"written"`
	Reloaded  []string    `json:"reloaded"`
	Errors    []JSONError `json:"errors"`
	Fatal     *JSONError  `json:"fatal,omitempty"`
}

// JSONSummary contains high-level counts for a run
type JSONSummary struct {
	Preprocessor string  `json:"preprocessor"`
	Dependencies int     `json:"dependencies"`
	FilesRead    int     `json:"files_read"`
	FilesWritten int     `json:"files_written"`
	Errors       int     `json:"errors"`
	DurationMS   float64 `json:"duration_ms"`
	OK           bool    `json:"ok"`
}

// JSONError represents a single build error
type JSONError struct {
	Kind    string `json:"kind,omitempty"`
	Plugin  string `json:"plugin,omitempty"`
	File    string `json:"file,omitempty"`
	Message string `json:"message"`
}

// WriteJSON writes the run summary as JSON
func WriteJSON(w io.Writer, result *Result, err error) error {
	output := buildJSONOutput(result, err)
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

// buildJSONOutput converts a run to JSONOutput
func buildJSONOutput(result *Result, err error) JSONOutput {
	output := JSONOutput{
		Version:   "1.0",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Written:   []string{},
		Reloaded:  []string{},
		Errors:    []JSONError{},
	}

	if result != nil {
		output.Summary = JSONSummary{
			Preprocessor: result.Preprocessor,
			Dependencies: len(result.Dependencies),
			FilesRead:    result.FilesRead,
			FilesWritten: len(result.Written),
			Errors:       len(result.Errors),
			DurationMS:   float64(result.Duration.Microseconds()) / 1000,
			OK:           err == nil && result.OK(),
		}
		output.Written = append(output.Written, result.Written...)
		output.Reloaded = append(output.Reloaded, result.Reloaded...)
		for _, be := range result.Errors {
			output.Errors = append(output.Errors, toJSONError(be))
		}
	}

	if err != nil {
		fatal := JSONError{Message: err.Error()}
		var be *BuildError
		if errors.As(err, &be) {
			fatal = toJSONError(be)
			fatal.Message = err.Error()
		}
		output.Fatal = &fatal
	}

	return output
}

func toJSONError(be *BuildError) JSONError {
	return JSONError{
		Kind:    string(be.Kind),
		Plugin:  be.Plugin,
		File:    be.File,
		Message: be.Message,
	}
}
