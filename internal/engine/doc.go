// Package engine implements the resquel statement chain executor.
//
// The engine turns one route's query template into a sequence of bound SQL
// executions against a dialect.Connector and folds the normalized results
// into a route.Result.
//
// Execution model:
//  1. The template is normalized into statements; a malformed chain fails
//     before any database call
//  2. Each statement's parameter references are resolved in order against
//     the RequestContext (body, route params, query string, prior results)
//  3. The statement runs through the connector and its raw response is
//     normalized into rows
//  4. Rows are appended to the chain log and become priorResults[i] for the
//     statements that follow
//
// Statements in one chain never run concurrently. Different requests share
// nothing but the connector's pool.
//
// Values reach the database only as driver bind parameters. SQL text is
// never built from request data.
package engine
