// Package ir provides the foundational value types shared by the query layer.
//
// This package contains leaf types only. All other internal packages may
// import ir; ir imports nothing internal.
//
// Key design constraints:
//   - NO float types in literals - use Int for numbers
//   - Join types are the classic integer criteria codes (0, 1, 2, 4)
//   - Content hashes use canonical JSON with domain separation
package ir
