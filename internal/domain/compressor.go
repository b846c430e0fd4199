package domain

// Compressor transforms a dump file on disk. Extension is appended to the
// stored artifact name.
type Compressor interface {
	Compress(sourcePath, destPath string) error
	Decompress(sourcePath, destPath string) error
	Extension() string
}
