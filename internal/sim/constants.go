package sim

const (
	// DefaultSimulationsPerSecond is the fixed step rate shared by the server
	// and every predicting client. Frame math assumes both sides agree on it.
	DefaultSimulationsPerSecond = 120

	// DefaultRespawnFrames is the delay between a death or finish and the
	// scheduled respawn, expressed in frames (half a second at the default
	// rate).
	DefaultRespawnFrames = 60

	// DefaultFramesPerBroadcast is how many frames accumulate between delta
	// broadcasts.
	DefaultFramesPerBroadcast = 2

	// DefaultCatchupMaxFrames bounds how many frames a late wake may run to
	// catch up before the remaining debt is dropped.
	DefaultCatchupMaxFrames = 4

	// DefaultCommandCapacity sizes the loop's command buffer.
	DefaultCommandCapacity = 1024

	// DefaultSpawnHistoryFrames bounds the spawn/despawn history retained per
	// entity. Entities whose history has fully aged out are reclaimed.
	DefaultSpawnHistoryFrames = DefaultSimulationsPerSecond * 10

	// DefaultPlaneSize is the extent of the ground plane spawned when a level
	// defines nothing else.
	DefaultPlaneSize = 20.0
)
