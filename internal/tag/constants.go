package tag

// Capture buffer geometry
const (
	BufferSize  = 900 // raw period samples per capture cycle
	firstSample = 1   // element 0 has no predecessor and is never quantized
)

// Default period-count thresholds for an 8 MHz front end clocking a 125 kHz carrier
const (
	DefaultShortPulse     = 5 // nominal short period, quantized to Zero
	DefaultLongPulse      = 7 // nominal long period, quantized to One
	DefaultAmbiguousPulse = 6 // merged short/long period, repeats the previous symbol
)

// Run-length buckets
const (
	MarkerRun      = 15 // start (One) or end (Zero) frame marker
	MinSingleRun   = 4
	MaxSingleRun   = 8
	MinDoubleRun   = 9
	MaxDoubleRun   = 14
	StreamSize     = 90 // single-bit Manchester slots, two per code bit
	RequiredSlots  = 88 // 44 data pairs; the parity pair is optional
	DataBits       = RequiredSlots / 2
	CodeBits       = StreamSize / 2
	parityPairSlot = RequiredSlots
)

// Field layout: 20-bit manufacturer code, 8-bit site code, 16-bit unique id
const (
	ManufacturerIDOffset = 0
	ManufacturerIDLength = 20

	SiteCodeOffset = 20
	SiteCodeLength = 8

	UniqueIDOffset = 28
	UniqueIDLength = 16
)
