/*
 * MEW
 *
 * Package store is the Graph Store: indexed storage of nodes, edges and
 * attributes, and the sole authority on entity existence. It keeps an
 * in-memory authoritative state whose durability comes from package
 * journal.
 */
package store

import "github.com/bdjafer/mew/mewerr"

// ErrNotFound is returned by lookups over a missing id.
var ErrNotFound = mewerr.NotFound("entity not found")
