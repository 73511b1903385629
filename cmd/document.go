package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/doctrans/internal/format"
	"github.com/sells-group/doctrans/internal/model"
	"github.com/sells-group/doctrans/internal/validate"
)

// documentBundle is a parsed document as written by `parse` and read back
// by `reconstruct`. Editing segment content in between produces a
// translated document without a store.
type documentBundle struct {
	Type           model.DocumentType           `json:"type"`
	SourceLanguage string                       `json:"source_language,omitempty"`
	TargetLanguage string                       `json:"target_language,omitempty"`
	WordCount      int                          `json:"word_count"`
	Structure      model.OriginalStructure      `json:"structure"`
	Segments       []model.Segment              `json:"segments"`
	Mappings       []model.SensitiveDataMapping `json:"mappings,omitempty"`
}

func newBundle(typ model.DocumentType, res *format.ParseResult) documentBundle {
	segments := res.Segments
	if segments == nil {
		segments = []model.Segment{}
	}
	return documentBundle{
		Type:           typ,
		SourceLanguage: res.SourceLanguage,
		TargetLanguage: res.TargetLanguage,
		WordCount:      format.WordCount(res.Segments),
		Structure:      res.Structure,
		Segments:       segments,
	}
}

func parseDocumentType(s string) (model.DocumentType, error) {
	typ := model.DocumentType(strings.ToUpper(strings.ReplaceAll(s, "-", "_")))
	if !typ.Valid() {
		return "", eris.Errorf("unsupported document type %q (PLAIN_TEXT, HTML or XLIFF)", s)
	}
	return typ, nil
}

var parseCmd = &cobra.Command{
	Use:   "parse <file|->",
	Short: "Split a document into segments",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		typeFlag, _ := cmd.Flags().GetString("type")
		output, _ := cmd.Flags().GetString("output")

		typ, err := parseDocumentType(typeFlag)
		if err != nil {
			return err
		}
		raw, err := readInput(args[0])
		if err != nil {
			return err
		}
		res, err := format.DefaultRegistry().Parse(typ, string(raw))
		if err != nil {
			return eris.Wrap(err, "parse")
		}
		return writeValue(cmd.OutOrStdout(), output, newBundle(typ, res))
	},
}

var reconstructCmd = &cobra.Command{
	Use:   "reconstruct <bundle|->",
	Short: "Rebuild a document from a parsed bundle",
	Long:  "Reads a JSON or YAML bundle written by `parse` and prints the rebuilt document. Each segment contributes its edited, machine translated or source content, in that order.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, _ := cmd.Flags().GetString("target-language")

		data, err := readInput(args[0])
		if err != nil {
			return err
		}
		var b documentBundle
		if err := readValue(data, &b); err != nil {
			return err
		}
		if target == "" {
			target = b.TargetLanguage
		}
		doc, err := format.DefaultRegistry().Reconstruct(b.Type, format.ReconstructInput{
			Structure:      b.Structure,
			Segments:       b.Segments,
			Mappings:       b.Mappings,
			TargetLanguage: target,
		})
		if err != nil {
			return eris.Wrap(err, "reconstruct")
		}
		_, err = io.WriteString(cmd.OutOrStdout(), doc)
		return err
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate <original> <edited>",
	Short: "Check that an edit kept every marker and placeholder",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		fromFiles, _ := cmd.Flags().GetBool("files")
		original, edited := args[0], args[1]
		if fromFiles {
			o, err := readInput(original)
			if err != nil {
				return err
			}
			e, err := readInput(edited)
			if err != nil {
				return err
			}
			original, edited = string(o), string(e)
		}

		res := validate.Validate(original, edited)
		if !res.Valid {
			return res.Err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "valid")
		return nil
	},
}

func init() {
	parseCmd.Flags().StringP("type", "t", string(model.DocumentTypePlainText), "document type: PLAIN_TEXT, HTML or XLIFF")
	parseCmd.Flags().StringP("output", "o", "json", "output format: json or yaml")
	reconstructCmd.Flags().String("target-language", "", "target language for documents that do not declare one")
	validateCmd.Flags().Bool("files", false, "treat the arguments as file paths")

	rootCmd.AddCommand(parseCmd, reconstructCmd, validateCmd)
}
