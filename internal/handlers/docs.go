package handlers

import (
	"encoding/json"
	"net/http"
)

func jsonContent(schema interface{}) map[string]interface{} {
	return map[string]interface{}{
		"application/json": map[string]interface{}{"schema": schema},
	}
}

func ref(name string) map[string]string {
	return map[string]string{"$ref": "#/components/schemas/" + name}
}

func response(description string, schema interface{}) map[string]interface{} {
	r := map[string]interface{}{"description": description}
	if schema != nil {
		r["content"] = jsonContent(schema)
	}
	return r
}

var idParameter = []map[string]interface{}{
	{
		"name":        "id",
		"in":          "path",
		"description": "Dataset identifier",
		"required":    true,
		"schema":      map[string]string{"type": "string", "format": "uuid"},
	},
}

var errorResponses = map[string]interface{}{
	"400": response("Invalid request", ref("Error")),
	"404": response("Dataset or query not found", ref("Error")),
	"500": response("Internal server error", ref("Error")),
}

func withErrors(ok map[string]interface{}) map[string]interface{} {
	out := map[string]interface{}{}
	for k, v := range errorResponses {
		out[k] = v
	}
	for k, v := range ok {
		out[k] = v
	}
	return out
}

// OpenAPISpec returns the OpenAPI 3.0 specification for the ClimateQuery API
func OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	spec := map[string]interface{}{
		"openapi": "3.0.0",
		"info": map[string]interface{}{
			"title":       "ClimateQuery API",
			"description": "Build queryable datasets from Bureau of Meteorology climate data files and export query results as CSV",
			"version":     "1.0.0",
		},
		"servers": []map[string]string{
			{"url": "http://localhost:8080", "description": "Local development server"},
		},
		"paths": map[string]interface{}{
			"/api/datasets": map[string]interface{}{
				"get": map[string]interface{}{
					"summary": "List datasets",
					"responses": withErrors(map[string]interface{}{
						"200": response("Datasets in the catalog", map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"data":  map[string]interface{}{"type": "array", "items": ref("Dataset")},
								"total": map[string]string{"type": "integer"},
							},
						}),
					}),
				},
				"post": map[string]interface{}{
					"summary":     "Build a dataset",
					"description": "Extracts the requested stations, measures and years from the source directories into a new dataset",
					"requestBody": map[string]interface{}{
						"required": true,
						"content": jsonContent(map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"name":    map[string]string{"type": "string"},
								"request": ref("DataRequest"),
							},
						}),
					},
					"responses": withErrors(map[string]interface{}{
						"201": response("The built dataset", ref("Dataset")),
					}),
				},
			},
			"/api/datasets/{id}": map[string]interface{}{
				"parameters": idParameter,
				"get": map[string]interface{}{
					"summary":   "Get a dataset",
					"responses": withErrors(map[string]interface{}{"200": response("The dataset", ref("Dataset"))}),
				},
				"delete": map[string]interface{}{
					"summary":   "Delete a dataset and its backing store",
					"responses": withErrors(map[string]interface{}{"204": response("Deleted", nil)}),
				},
			},
			"/api/datasets/{id}/queries": map[string]interface{}{
				"parameters": idParameter,
				"get": map[string]interface{}{
					"summary":     "List supported queries",
					"description": "Catalog queries whose measures and granularity the dataset satisfies",
					"responses": withErrors(map[string]interface{}{
						"200": response("Supported queries", map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"data":  map[string]interface{}{"type": "array", "items": ref("Query")},
								"total": map[string]string{"type": "integer"},
							},
						}),
					}),
				},
			},
			"/api/datasets/{id}/presence": map[string]interface{}{
				"parameters": idParameter,
				"get": map[string]interface{}{
					"summary":     "Data presence report",
					"description": "Percentage of days per station and year with quality-approved values for every measure",
					"responses": withErrors(map[string]interface{}{
						"200": response("Station to year to percentage", map[string]interface{}{
							"type": "object",
							"additionalProperties": map[string]interface{}{
								"type":                 "object",
								"additionalProperties": map[string]string{"type": "number"},
							},
						}),
					}),
				},
			},
			"/api/datasets/{id}/export": map[string]interface{}{
				"parameters": idParameter,
				"post": map[string]interface{}{
					"summary":     "Export dataset rows as CSV",
					"description": "Runs a catalog query, or selects every row when no query is named",
					"requestBody": map[string]interface{}{
						"required": false,
						"content": jsonContent(map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"query":       map[string]string{"type": "string"},
								"parameters":  map[string]interface{}{"type": "object", "additionalProperties": true},
								"aggregation": map[string]interface{}{"type": "array", "items": map[string]string{"type": "string"}},
								"timeRange": map[string]interface{}{
									"type": "object",
									"properties": map[string]interface{}{
										"startYear":  map[string]string{"type": "integer"},
										"startMonth": map[string]string{"type": "integer"},
										"endYear":    map[string]string{"type": "integer"},
										"endMonth":   map[string]string{"type": "integer"},
									},
								},
							},
						}),
					},
					"responses": withErrors(map[string]interface{}{
						"200": map[string]interface{}{
							"description": "Query result",
							"content": map[string]interface{}{
								"text/csv": map[string]interface{}{"schema": map[string]string{"type": "string"}},
							},
						},
					}),
				},
			},
			"/api/requests/validate": map[string]interface{}{
				"post": map[string]interface{}{
					"summary":     "Validate a data request",
					"description": "Checks each requested station against the station details of every measure's source directory",
					"requestBody": map[string]interface{}{
						"required": true,
						"content":  jsonContent(ref("DataRequest")),
					},
					"responses": withErrors(map[string]interface{}{
						"200": response("Validation report", map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"valid":   map[string]string{"type": "boolean"},
								"request": ref("DataRequest"),
								"details": map[string]interface{}{
									"type": "array",
									"items": map[string]interface{}{
										"type": "object",
										"properties": map[string]interface{}{
											"supported":        map[string]string{"type": "boolean"},
											"station":          map[string]string{"type": "integer"},
											"measurement_code": map[string]string{"type": "integer"},
											"start":            map[string]string{"type": "integer"},
											"end":              map[string]string{"type": "integer"},
										},
									},
								},
							},
						}),
					}),
				},
			},
			"/health": map[string]interface{}{
				"get": map[string]interface{}{
					"summary": "Health check",
					"responses": map[string]interface{}{
						"200": response("Service is healthy", map[string]interface{}{
							"type":       "object",
							"properties": map[string]interface{}{"status": map[string]string{"type": "string"}},
						}),
						"503": response("Catalog index unavailable", nil),
					},
				},
			},
			"/metrics": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Prometheus metrics",
					"description": "Prometheus metrics endpoint for monitoring",
					"responses": map[string]interface{}{
						"200": map[string]interface{}{
							"description": "Prometheus metrics in text format",
							"content": map[string]interface{}{
								"text/plain": map[string]interface{}{"schema": map[string]string{"type": "string"}},
							},
						},
					},
				},
			},
		},
		"components": map[string]interface{}{
			"schemas": map[string]interface{}{
				"DataRequest": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"stations":         map[string]interface{}{"type": "array", "items": map[string]string{"type": "integer"}, "description": "Empty selects every station"},
						"measurementCodes": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "integer", "enum": []int{122123, 136, 193, 2}}},
						"sourceDirs":       map[string]interface{}{"type": "object", "additionalProperties": map[string]string{"type": "string"}, "description": "Source directory keyed by measurement code"},
						"startYear":        map[string]interface{}{"type": "integer", "description": "0 selects every year"},
						"endYear":          map[string]interface{}{"type": "integer", "description": "0 selects every year"},
					},
				},
				"Dataset": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"id":              map[string]string{"type": "string", "format": "uuid"},
						"name":            map[string]string{"type": "string"},
						"request":         ref("DataRequest"),
						"created_at":      map[string]string{"type": "string", "format": "date-time"},
						"database":        map[string]string{"type": "string"},
						"granularity":     map[string]interface{}{"type": "string", "enum": []string{"Yearly", "Monthly", "Daily", "Hourly", "Per Minute", "Per Second"}},
						"percent_present": map[string]string{"type": "number"},
					},
				},
				"Query": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"name":                map[string]string{"type": "string"},
						"select":              map[string]string{"type": "string"},
						"where":               map[string]interface{}{"type": "array", "items": map[string]string{"type": "string"}},
						"parameters":          map[string]interface{}{"type": "array", "items": map[string]string{"type": "object"}},
						"requiredCodes":       map[string]interface{}{"type": "array", "items": map[string]string{"type": "integer"}},
						"requiredGranularity": map[string]string{"type": "string"},
					},
				},
				"Error": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"error":   map[string]string{"type": "string"},
						"message": map[string]string{"type": "string"},
						"code":    map[string]string{"type": "integer"},
					},
				},
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(spec)
}
