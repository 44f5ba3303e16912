package mcp

import (
	"fmt"

	json "github.com/segmentio/encoding/json"
)

// Hand-written (de)serializers for the tagged-union wire shapes in
// schema.go. The teacher generates this style of code from a schema
// definition; MCP's schema isn't shipped in machine-readable form here,
// so these are written directly against the wire shapes in SPEC_FULL.md §3.1.

func (c ContentBlock) MarshalJSON() ([]byte, error) {
	switch {
	case c.Text != nil:
		c.Text.Type = "text"
		return json.Marshal(c.Text)
	case c.Image != nil:
		c.Image.Type = "image"
		return json.Marshal(c.Image)
	case c.Audio != nil:
		c.Audio.Type = "audio"
		return json.Marshal(c.Audio)
	case c.Resource != nil:
		c.Resource.Type = "resource"
		return json.Marshal(c.Resource)
	default:
		return nil, fmt.Errorf("mcp: empty ContentBlock")
	}
}

func (c *ContentBlock) UnmarshalJSON(data []byte) error {
	var tag struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return err
	}
	switch tag.Type {
	case "text":
		var v TextContent
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		c.Text = &v
	case "image":
		var v ImageContent
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		c.Image = &v
	case "audio":
		var v AudioContent
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		c.Audio = &v
	case "resource":
		var v EmbeddedResource
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		c.Resource = &v
	default:
		return fmt.Errorf("mcp: unknown content block type %q", tag.Type)
	}
	return nil
}

func (e EmbeddedResource) MarshalJSON() ([]byte, error) {
	type wire struct {
		Type        string                `json:"type"`
		Resource    any                   `json:"resource"`
		Annotations *Annotations          `json:"annotations,omitempty"`
	}
	var res any
	switch {
	case e.Text != nil:
		res = e.Text
	case e.Blob != nil:
		res = e.Blob
	default:
		return nil, fmt.Errorf("mcp: EmbeddedResource has neither text nor blob contents")
	}
	return json.Marshal(wire{Type: "resource", Resource: res, Annotations: e.Annotations})
}

func (e *EmbeddedResource) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type        string          `json:"type"`
		Resource    json.RawMessage `json:"resource"`
		Annotations *Annotations    `json:"annotations,omitempty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.Annotations = raw.Annotations
	return unmarshalResourceContents(raw.Resource, &e.Text, &e.Blob)
}

func (r ReadResourceContents) MarshalJSON() ([]byte, error) {
	switch {
	case r.Text != nil:
		return json.Marshal(r.Text)
	case r.Blob != nil:
		return json.Marshal(r.Blob)
	default:
		return nil, fmt.Errorf("mcp: empty ReadResourceContents")
	}
}

func (r *ReadResourceContents) UnmarshalJSON(data []byte) error {
	return unmarshalResourceContents(data, &r.Text, &r.Blob)
}

// unmarshalResourceContents decides between text and blob resource
// contents by probing for the discriminating "text"/"blob" field, since
// ResourceContents itself carries no type tag on the wire.
func unmarshalResourceContents(data []byte, text **TextResourceContents, blob **BlobResourceContents) error {
	var probe struct {
		Text *string `json:"text"`
		Blob *string `json:"blob"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	if probe.Text != nil {
		var v TextResourceContents
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*text = &v
		return nil
	}
	if probe.Blob != nil {
		var v BlobResourceContents
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*blob = &v
		return nil
	}
	return fmt.Errorf("mcp: resource contents has neither text nor blob field")
}

func (c CompletionReference) MarshalJSON() ([]byte, error) {
	switch {
	case c.Prompt != nil:
		c.Prompt.Type = "ref/prompt"
		return json.Marshal(c.Prompt)
	case c.Resource != nil:
		c.Resource.Type = "ref/resource"
		return json.Marshal(c.Resource)
	default:
		return nil, fmt.Errorf("mcp: empty CompletionReference")
	}
}

func (c *CompletionReference) UnmarshalJSON(data []byte) error {
	var tag struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return err
	}
	switch tag.Type {
	case "ref/prompt":
		var v PromptReference
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		c.Prompt = &v
	case "ref/resource":
		var v ResourceReference
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		c.Resource = &v
	default:
		return fmt.Errorf("mcp: unknown completion reference type %q", tag.Type)
	}
	return nil
}
