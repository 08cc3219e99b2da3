package server

import (
	"github.com/morezero/cephapi/pkg/schema"
)

// openAPI3 types for the document generated from registered commands.
type openAPI3Spec struct {
	OpenAPI string                      `json:"openapi"`
	Info    openAPI3Info                `json:"info"`
	Paths   map[string]openAPI3PathItem `json:"paths"`
}

type openAPI3Info struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version"`
}

type openAPI3PathItem struct {
	Post *openAPI3Operation `json:"post,omitempty"`
}

type openAPI3Operation struct {
	Summary     string                      `json:"summary"`
	Description string                      `json:"description,omitempty"`
	OperationID string                      `json:"operationId"`
	Tags        []string                    `json:"tags,omitempty"`
	RequestBody *openAPI3RequestBody        `json:"requestBody,omitempty"`
	Responses   map[string]openAPI3Response `json:"responses"`
}

type openAPI3RequestBody struct {
	Content map[string]openAPI3MediaType `json:"content"`
}

type openAPI3Response struct {
	Description string                       `json:"description"`
	Content     map[string]openAPI3MediaType `json:"content,omitempty"`
}

type openAPI3MediaType struct {
	Schema map[string]interface{} `json:"schema,omitempty"`
}

var envelopeSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"id":     map[string]interface{}{"type": "string"},
		"ok":     map[string]interface{}{"type": "boolean"},
		"result": map[string]interface{}{"type": "object"},
		"error":  map[string]interface{}{"type": "object"},
	},
}

// buildOpenAPISpec builds an OpenAPI 3.0 spec with one POST /commands/{name} path per command.
func buildOpenAPISpec(release string, commands []schema.CommandSchema) *openAPI3Spec {
	paths := make(map[string]openAPI3PathItem, len(commands))
	for i := range commands {
		c := &commands[i]
		op := &openAPI3Operation{
			Summary:     c.CommandPrefix(),
			Description: c.Help,
			OperationID: c.Name,
			RequestBody: &openAPI3RequestBody{
				Content: map[string]openAPI3MediaType{
					"application/json": {Schema: argsSchema(c)},
				},
			},
			Responses: map[string]openAPI3Response{
				"200": {
					Description: "Success",
					Content: map[string]openAPI3MediaType{
						"application/json": {Schema: envelopeSchema},
					},
				},
				"400": {Description: "Invalid argument"},
				"422": {Description: "Rejected by the monitor"},
				"502": {Description: "Cluster unreachable or malformed reply"},
			},
		}
		if c.Module != "" {
			op.Tags = []string{c.Module}
		}
		paths["/commands/"+c.Name] = openAPI3PathItem{Post: op}
	}
	return &openAPI3Spec{
		OpenAPI: "3.0.0",
		Info: openAPI3Info{
			Title:       "cephapi " + release,
			Description: "Ceph monitor commands for release " + release,
			Version:     release,
		},
		Paths: paths,
	}
}

// argsSchema describes a command's arguments as a JSON Schema object.
func argsSchema(c *schema.CommandSchema) map[string]interface{} {
	props := make(map[string]interface{}, len(c.Params))
	var required []string
	for i := range c.Params {
		p := &c.Params[i]
		prop := paramSchema(p)
		if p.Repeat {
			prop = map[string]interface{}{"type": "array", "items": prop}
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	out := map[string]interface{}{
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}

func paramSchema(p *schema.Param) map[string]interface{} {
	prop := map[string]interface{}{"x-ceph-type": string(p.Type)}
	switch p.Type {
	case schema.TypeInt, schema.TypeFloat:
		prop["type"] = "number"
		if p.Type == schema.TypeInt {
			prop["type"] = "integer"
		}
		lo, hi := p.Bounds()
		if lo != nil {
			prop["minimum"] = *lo
		}
		if hi != nil {
			prop["maximum"] = *hi
		}
	case schema.TypeBool:
		prop["type"] = "boolean"
	case schema.TypeChoices:
		prop["type"] = "string"
		prop["enum"] = p.ChoiceList()
	case schema.TypeOsdName:
		prop["oneOf"] = []interface{}{
			map[string]interface{}{"type": "string", "pattern": `^osd\.\d+$`},
			map[string]interface{}{"type": "integer", "minimum": 0},
		}
	case schema.TypeUUID:
		prop["type"] = "string"
		prop["format"] = "uuid"
	case schema.TypePgid:
		prop["type"] = "string"
		prop["pattern"] = `^\d+\.[0-9a-fA-F]+$`
	default:
		prop["type"] = "string"
		if p.GoodChars != "" {
			prop["pattern"] = "^[" + p.GoodChars + "]*$"
		}
	}
	return prop
}
