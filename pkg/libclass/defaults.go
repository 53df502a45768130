package libclass

// DefaultTrackedLibraries is the hard-coded per-chain map of the receive
// library implementation this core understands the ULN config of. Per spec
// §9, this is kept hard-coded here; pkg/config.Chains[].TrackedLibraries
// lets a deployment layer overrides on top via Merge without changing the
// classifier's semantics for chains nobody overrides.
//
// Addresses are placeholders for the canonical ULN301 receive-library
// deployments; a real deployment supplies the live set via configuration.
var DefaultTrackedLibraries = map[int64][]string{
	1:     {"0x000000000000000000000000000000000000ab01"}, // Ethereum mainnet
	56:    {"0x000000000000000000000000000000000000ab56"}, // BNB Smart Chain
	42161: {"0x000000000000000000000000000000000000abaa"}, // Arbitrum One
	10:    {"0x000000000000000000000000000000000000ab0a"}, // OP Mainnet
}
