package api

import (
	"net/url"
	"strings"

	"github.com/mattjoyce/cinema-bridge/internal/request"
)

// buildOpenAPIDoc returns an OpenAPI 3.1 document for the configured channel.
func buildOpenAPIDoc(cfg Config) map[string]any {
	doc := map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   "cinema-bridge",
			"version": "1.0",
		},
		"paths": map[string]any{
			channelPath(cfg.Channel): map[string]any{
				"post": callOperation(cfg),
			},
		},
	}
	if cfg.APIKey != "" {
		doc["components"] = map[string]any{
			"securitySchemes": map[string]any{
				"BearerAuth": map[string]any{
					"type":   "http",
					"scheme": "bearer",
				},
			},
		}
		doc["security"] = []any{map[string]any{"BearerAuth": []string{}}}
	}
	return doc
}

// channelPath escapes each segment of the channel name.
func channelPath(channel string) string {
	segments := strings.Split(channel, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return "/channels/" + strings.Join(segments, "/")
}

func callOperation(cfg Config) map[string]any {
	methods := append([]string{cfg.Method}, cfg.Aliases...)
	return map[string]any{
		"operationId": "call",
		"summary":     "Invoke " + cfg.Method + " on " + cfg.Channel,
		"requestBody": map[string]any{
			"required": true,
			"content": map[string]any{
				"application/json": map[string]any{
					"schema": callSchema(methods, cfg.Domain),
				},
			},
		},
		"responses": map[string]any{
			"200": map[string]any{"description": "Command handed off"},
			"400": map[string]any{"description": "Malformed call"},
			"422": map[string]any{"description": "MissingArgument or InvalidEnumValue"},
			"500": map[string]any{"description": "CommandConstructionError"},
			"501": map[string]any{"description": "Method not implemented"},
			"502": map[string]any{"description": "DispatchError or ExecError"},
		},
	}
}

func callSchema(methods []string, d request.Domain) map[string]any {
	enum := func(f request.Field) map[string]any {
		return map[string]any{"type": "string", "enum": f.Allowed, "default": f.Default}
	}
	path := map[string]any{"type": "string", "minLength": 1}
	return map[string]any{
		"type":                 "object",
		"required":             []string{"method", "args"},
		"additionalProperties": false,
		"properties": map[string]any{
			"method": map[string]any{"type": "string", "enum": methods},
			"args": map[string]any{
				"type": "object",
				// Either spelling of the input path satisfies the call.
				"anyOf": []map[string]any{
					{"required": []string{request.InputKeys[0]}},
					{"required": []string{request.InputKeys[1]}},
				},
				"properties": map[string]any{
					request.InputKeys[0]:   path,
					request.InputKeys[1]:   path,
					"profile":              enum(d.Profile),
					request.ChannelKeys[0]: enum(d.Channels),
					request.ChannelKeys[1]: enum(d.Channels),
					"intensity":            enum(d.Intensity),
				},
			},
		},
	}
}
