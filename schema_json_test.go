package mcp

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	json "github.com/segmentio/encoding/json"
)

func TestContentBlockRoundTripsEachVariant(t *testing.T) {
	cases := []ContentBlock{
		{Text: &TextContent{Text: "hi"}},
		{Image: &ImageContent{MimeType: "image/png", Data: "xx"}},
		{Audio: &AudioContent{MimeType: "audio/wav", Data: "yy"}},
		{Resource: &EmbeddedResource{Text: &TextResourceContents{URI: "file:///a", Text: "contents"}}},
	}
	for _, c := range cases {
		data, err := json.Marshal(c)
		if err != nil {
			t.Fatalf("Marshal(%+v): %v", c, err)
		}
		var got ContentBlock
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("Unmarshal(%s): %v", data, err)
		}
		switch {
		case c.Text != nil:
			if diff := cmp.Diff(c.Text, got.Text); diff != "" {
				t.Errorf("text round trip mismatch (-want +got):\n%s", diff)
			}
		case c.Image != nil:
			if got.Image == nil || got.Image.Data != c.Image.Data {
				t.Errorf("image round trip: got %+v from %s", got.Image, data)
			}
		case c.Audio != nil:
			if got.Audio == nil || got.Audio.Data != c.Audio.Data {
				t.Errorf("audio round trip: got %+v from %s", got.Audio, data)
			}
		case c.Resource != nil:
			if got.Resource == nil || got.Resource.Text == nil || got.Resource.Text.Text != c.Resource.Text.Text {
				t.Errorf("resource round trip: got %+v from %s", got.Resource, data)
			}
		}
	}
}

func TestContentBlockMarshalEmptyErrors(t *testing.T) {
	_, err := json.Marshal(ContentBlock{})
	if err == nil {
		t.Fatal("expected an error marshaling a ContentBlock with no variant set")
	}
}

func TestContentBlockUnmarshalUnknownType(t *testing.T) {
	var c ContentBlock
	err := json.Unmarshal([]byte(`{"type":"bogus"}`), &c)
	if err == nil || !strings.Contains(err.Error(), "bogus") {
		t.Fatalf("expected an unknown-type error naming the bad type, got %v", err)
	}
}

func TestReadResourceContentsRoundTripsTextAndBlob(t *testing.T) {
	text := ReadResourceContents{Text: &TextResourceContents{URI: "file:///a", Text: "hello"}}
	data, err := json.Marshal(text)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var gotText ReadResourceContents
	if err := json.Unmarshal(data, &gotText); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if gotText.Text == nil || gotText.Text.Text != "hello" {
		t.Fatalf("got %+v from %s", gotText, data)
	}

	blob := ReadResourceContents{Blob: &BlobResourceContents{URI: "file:///b", Blob: "base64=="}}
	data, err = json.Marshal(blob)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var gotBlob ReadResourceContents
	if err := json.Unmarshal(data, &gotBlob); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if gotBlob.Blob == nil || gotBlob.Blob.Blob != "base64==" {
		t.Fatalf("got %+v from %s", gotBlob, data)
	}
}

func TestReadResourceContentsUnmarshalNeitherFieldErrors(t *testing.T) {
	var r ReadResourceContents
	if err := json.Unmarshal([]byte(`{"uri":"file:///a"}`), &r); err == nil {
		t.Fatal("expected an error when neither text nor blob is present")
	}
}

func TestCompletionReferenceRoundTripsBothVariants(t *testing.T) {
	prompt := CompletionReference{Prompt: &PromptReference{Name: "greet"}}
	data, err := json.Marshal(prompt)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var gotPrompt CompletionReference
	if err := json.Unmarshal(data, &gotPrompt); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if gotPrompt.Prompt == nil || gotPrompt.Prompt.Name != "greet" {
		t.Fatalf("got %+v from %s", gotPrompt, data)
	}

	resource := CompletionReference{Resource: &ResourceReference{URI: "file:///a"}}
	data, err = json.Marshal(resource)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var gotResource CompletionReference
	if err := json.Unmarshal(data, &gotResource); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if gotResource.Resource == nil || gotResource.Resource.URI != "file:///a" {
		t.Fatalf("got %+v from %s", gotResource, data)
	}
}

func TestEmbeddedResourceMarshalEmptyErrors(t *testing.T) {
	_, err := json.Marshal(EmbeddedResource{})
	if err == nil {
		t.Fatal("expected an error marshaling an EmbeddedResource with neither text nor blob")
	}
}
