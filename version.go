package riverbed

// Version is the library version, embedded in the CLI.
const Version = "0.1.0"
