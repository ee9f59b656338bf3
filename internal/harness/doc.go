// Package harness runs conformance scenarios against the HTTP surface.
//
// A scenario declares setup SQL, a set of routes and a list of requests.
// Each scenario runs in a fresh in-memory SQLite database behind the same
// handler the serve command builds, so a scenario exercises the controller,
// the statement chain executor and the normalizer end to end.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: customer_crud
//	description: "Create, read and delete a customer"
//	request_id: customer-crud
//	setup:
//	  - CREATE TABLE customer (id INTEGER PRIMARY KEY, email TEXT)
//	routes:
//	  - method: post
//	    endpoint: /customer
//	    query:
//	      - ["INSERT INTO customer (email) VALUES (?)", "body.email"]
//	      - ["SELECT * FROM customer WHERE id = last_insert_rowid()"]
//	steps:
//	  - request: POST /customer
//	    body: { email: "ada@example.com" }
//	    expect:
//	      status: 200
//	      rows: [{ id: 1 }]
//	assertions:
//	  - type: final_state
//	    table: customer
//	    where: { id: 1 }
//	    expect: { email: "ada@example.com" }
//
// # Assertion Types
//
//   - trace_contains: a request hit the route (optionally with a status)
//   - trace_order: routes were hit in the given order
//   - trace_count: a route was hit exactly N times
//   - final_state: a table row holds the expected values
//
// # Deterministic Testing
//
// Every request in a scenario gets the scenario's request_id, and chain log
// sequence numbers restart at 1 for each request. Traces are therefore
// byte-identical across runs and can be compared against golden files with
// RunWithGolden.
package harness
