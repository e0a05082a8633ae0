package grantor

// Decision allows bypassing grant-store resolution for admin tools and
// tests. Decisions are set at Resolver construction time via WithDecision,
// making the bypass explicit and visible in code.
type Decision int

const (
	// DecisionUnset means no override - resolve against the grant store.
	DecisionUnset Decision = iota

	// DecisionAllow bypasses resolution and treats every check as granted.
	// Use for admin tools, background jobs, or testing authorized paths.
	// Set-returning operations cannot enumerate "everything" and fall
	// through to the store.
	DecisionAllow

	// DecisionDeny bypasses resolution and treats every check as denied.
	// Set-returning operations return empty results without touching the
	// store. Use for testing unauthorized paths without database setup.
	DecisionDeny
)
