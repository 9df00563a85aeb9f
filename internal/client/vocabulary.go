package client

import (
	"context"
	"fmt"
)

// CustomizationPath is the endpoint of the vocabulary customization API.
const CustomizationPath = "/services/audio/asr/customization"

// VocabularyModel is the model name the customization API expects.
const VocabularyModel = "speech-biasing"

// Default paging for List.
const defaultPageSize = 10

// VocabularyEntry is one hot word.
type VocabularyEntry struct {
	Text        string `json:"text"`
	Weight      int    `json:"weight"`
	Lang        string `json:"lang,omitempty"`
	TargetLang  string `json:"target_lang,omitempty"`
	Translation string `json:"translation,omitempty"`
}

// Vocabulary is a summary returned by List.
type Vocabulary struct {
	ID       string `json:"vocabulary_id"`
	Status   string `json:"status"`
	Created  string `json:"gmt_create"`
	Modified string `json:"gmt_modified"`
}

// VocabularyDetails is returned by Query.
type VocabularyDetails struct {
	Status      string            `json:"status"`
	TargetModel string            `json:"target_model"`
	Created     string            `json:"gmt_create"`
	Modified    string            `json:"gmt_modified"`
	Entries     []VocabularyEntry `json:"vocabulary"`
}

// vocabularyRequest is the envelope every customization call posts.
type vocabularyRequest struct {
	Model string          `json:"model"`
	Input vocabularyInput `json:"input"`
}

type vocabularyInput struct {
	Action       string            `json:"action"`
	TargetModel  string            `json:"target_model,omitempty"`
	Prefix       string            `json:"prefix,omitempty"`
	VocabularyID string            `json:"vocabulary_id,omitempty"`
	Vocabulary   []VocabularyEntry `json:"vocabulary,omitempty"`
	PageIndex    *int              `json:"page_index,omitempty"`
	PageSize     *int              `json:"page_size,omitempty"`
}

type vocabularyResponse[T any] struct {
	Output    T      `json:"output"`
	RequestID string `json:"request_id"`
	Usage     struct {
		Count int `json:"count"`
	} `json:"usage"`
}

// Vocabularies manages hot word lists used to bias recognition. Create
// returns an ID that is passed to recognition tasks as vocabulary_id.
type Vocabularies struct {
	c *Client
}

// Vocabularies returns the vocabulary customization API.
func (c *Client) Vocabularies() *Vocabularies {
	return &Vocabularies{c: c}
}

func (v *Vocabularies) post(ctx context.Context, input vocabularyInput, out any) error {
	req := vocabularyRequest{Model: VocabularyModel, Input: input}
	if err := v.c.Post(ctx, CustomizationPath, req, out); err != nil {
		return fmt.Errorf("%s: %w", input.Action, err)
	}
	return nil
}

// Create registers a vocabulary for targetModel and returns its ID.
func (v *Vocabularies) Create(ctx context.Context, targetModel, prefix string, entries []VocabularyEntry) (string, error) {
	var resp vocabularyResponse[struct {
		VocabularyID string `json:"vocabulary_id"`
	}]
	err := v.post(ctx, vocabularyInput{
		Action:      "create_vocabulary",
		TargetModel: targetModel,
		Prefix:      prefix,
		Vocabulary:  entries,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Output.VocabularyID, nil
}

// Query returns the contents of a vocabulary.
func (v *Vocabularies) Query(ctx context.Context, id string) (*VocabularyDetails, error) {
	var resp vocabularyResponse[VocabularyDetails]
	if err := v.post(ctx, vocabularyInput{Action: "query_vocabulary", VocabularyID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp.Output, nil
}

// List returns one page of vocabularies whose name starts with prefix.
// A non-positive size uses the default page size.
func (v *Vocabularies) List(ctx context.Context, prefix string, page, size int) ([]Vocabulary, error) {
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = defaultPageSize
	}
	var resp vocabularyResponse[struct {
		VocabularyList []Vocabulary `json:"vocabulary_list"`
	}]
	err := v.post(ctx, vocabularyInput{
		Action:    "list_vocabulary",
		Prefix:    prefix,
		PageIndex: &page,
		PageSize:  &size,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Output.VocabularyList, nil
}

// Update replaces the entries of a vocabulary.
func (v *Vocabularies) Update(ctx context.Context, id string, entries []VocabularyEntry) error {
	return v.post(ctx, vocabularyInput{Action: "update_vocabulary", VocabularyID: id, Vocabulary: entries}, nil)
}

// Delete removes a vocabulary.
func (v *Vocabularies) Delete(ctx context.Context, id string) error {
	return v.post(ctx, vocabularyInput{Action: "delete_vocabulary", VocabularyID: id}, nil)
}
