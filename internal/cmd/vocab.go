package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/inercia/inferstream/internal/client"
)

const defaultWordWeight = 4

var (
	vocabTargetModel string
	vocabPrefix      string
	vocabWords       []string
	vocabFile        string
	vocabLang        string
	vocabPage        int
	vocabPageSize    int
)

var vocabCmd = &cobra.Command{
	Use:   "vocab",
	Short: "Manage custom vocabularies",
	Long: `Manage hot word lists that bias recognition toward domain terms.
Pass the returned ID to 'inferstream asr --vocabulary-id'.`,
}

var vocabCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a vocabulary",
	Long: `Create a vocabulary from --word flags and/or a JSON file.

A word is "text" or "text:weight" (weight 1-5, default 4). The file holds a
JSON array of {"text": ..., "weight": ..., "lang": ...} objects.

Examples:
  inferstream vocab create --prefix demo --word "Qwen:5" --word "DashScope"
  inferstream vocab create --prefix med --file terms.json`,
	Args: cobra.NoArgs,
	RunE: runVocabCreate,
}

var vocabListCmd = &cobra.Command{
	Use:   "list",
	Short: "List vocabularies",
	Args:  cobra.NoArgs,
	RunE:  runVocabList,
}

var vocabGetCmd = &cobra.Command{
	Use:   "get <vocabulary-id>",
	Short: "Show a vocabulary and its words",
	Args:  cobra.ExactArgs(1),
	RunE:  runVocabGet,
}

var vocabUpdateCmd = &cobra.Command{
	Use:   "update <vocabulary-id>",
	Short: "Replace the words of a vocabulary",
	Args:  cobra.ExactArgs(1),
	RunE:  runVocabUpdate,
}

var vocabDeleteCmd = &cobra.Command{
	Use:   "delete <vocabulary-id>",
	Short: "Delete a vocabulary",
	Args:  cobra.ExactArgs(1),
	RunE:  runVocabDelete,
}

func init() {
	rootCmd.AddCommand(vocabCmd)
	vocabCmd.AddCommand(vocabCreateCmd, vocabListCmd, vocabGetCmd, vocabUpdateCmd, vocabDeleteCmd)

	for _, c := range []*cobra.Command{vocabCreateCmd, vocabUpdateCmd} {
		c.Flags().StringArrayVarP(&vocabWords, "word", "w", nil, "Word as text or text:weight (repeatable)")
		c.Flags().StringVarP(&vocabFile, "file", "f", "", "JSON file with vocabulary entries")
		c.Flags().StringVar(&vocabLang, "lang", "", "Language of --word entries")
	}
	vocabCreateCmd.Flags().StringVar(&vocabTargetModel, "target-model", "", "Recognition model the vocabulary is for (default: asr model from config)")
	vocabCreateCmd.Flags().StringVar(&vocabPrefix, "prefix", "", "Short prefix for the vocabulary ID (required)")
	_ = vocabCreateCmd.MarkFlagRequired("prefix")

	vocabListCmd.Flags().StringVar(&vocabPrefix, "prefix", "", "Only list vocabularies with this prefix")
	vocabListCmd.Flags().IntVar(&vocabPage, "page", 0, "Page index")
	vocabListCmd.Flags().IntVar(&vocabPageSize, "page-size", 10, "Page size")
}

// parseWord parses "text" or "text:weight".
func parseWord(s, lang string) (client.VocabularyEntry, error) {
	e := client.VocabularyEntry{Text: s, Weight: defaultWordWeight, Lang: lang}
	if i := strings.LastIndex(s, ":"); i > 0 {
		w, err := strconv.Atoi(s[i+1:])
		if err == nil {
			e.Text, e.Weight = s[:i], w
		}
	}
	if e.Text == "" {
		return e, fmt.Errorf("empty word %q", s)
	}
	if e.Weight < 1 || e.Weight > 5 {
		return e, fmt.Errorf("word %q: weight must be between 1 and 5", s)
	}
	return e, nil
}

func vocabEntries() ([]client.VocabularyEntry, error) {
	var entries []client.VocabularyEntry
	if vocabFile != "" {
		data, err := os.ReadFile(vocabFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read vocabulary file: %w", err)
		}
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", vocabFile, err)
		}
	}
	for _, w := range vocabWords {
		e, err := parseWord(w, vocabLang)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("no words given: use --word or --file")
	}
	return entries, nil
}

func runVocabCreate(cmd *cobra.Command, args []string) error {
	entries, err := vocabEntries()
	if err != nil {
		return err
	}
	c, err := newClient()
	if err != nil {
		return err
	}
	id, err := c.Vocabularies().Create(cmd.Context(), firstNonEmpty(vocabTargetModel, cfg.ASR.Model), vocabPrefix, entries)
	if err != nil {
		return fmt.Errorf("failed to create vocabulary: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), id)
	return nil
}

func runVocabList(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	list, err := c.Vocabularies().List(cmd.Context(), vocabPrefix, vocabPage, vocabPageSize)
	if err != nil {
		return fmt.Errorf("failed to list vocabularies: %w", err)
	}
	out := cmd.OutOrStdout()
	if len(list) == 0 {
		fmt.Fprintln(out, "no vocabularies")
		return nil
	}
	for _, v := range list {
		fmt.Fprintf(out, "%s\t%s\t%s\n", v.ID, v.Status, v.Modified)
	}
	return nil
}

func runVocabGet(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	d, err := c.Vocabularies().Query(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get vocabulary: %w", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "id:           %s\n", args[0])
	fmt.Fprintf(out, "status:       %s\n", d.Status)
	fmt.Fprintf(out, "target model: %s\n", d.TargetModel)
	fmt.Fprintf(out, "modified:     %s\n", d.Modified)
	for _, e := range d.Entries {
		fmt.Fprintf(out, "  %s:%d\n", e.Text, e.Weight)
	}
	return nil
}

func runVocabUpdate(cmd *cobra.Command, args []string) error {
	entries, err := vocabEntries()
	if err != nil {
		return err
	}
	c, err := newClient()
	if err != nil {
		return err
	}
	if err := c.Vocabularies().Update(cmd.Context(), args[0], entries); err != nil {
		return fmt.Errorf("failed to update vocabulary: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "updated %s (%d words)\n", args[0], len(entries))
	return nil
}

func runVocabDelete(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	if err := c.Vocabularies().Delete(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to delete vocabulary: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
	return nil
}
