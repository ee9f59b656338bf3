// Package route provides the declared-route data model for resquel.
//
// This package contains the types shared by every other internal package:
// route specs, query templates, parameter references, result rows and the
// hook contracts. route imports nothing internal so the model stays the
// foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Templates carry SQL text and parameter references only; values are
//     never spliced into SQL text
//   - Result.Rows is never nil
//   - Hooks receive values, not shared mutable response state
package route
