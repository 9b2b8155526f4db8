// Package storage manages the on-disk layout of downloaded documents.
//
// Files are placed under <output>/<subdir_for_type>/ and are always written
// through a temporary ".part" sibling that is renamed into place once the
// body has been copied completely, so a failed transfer never leaves a
// partial document at the final path.
//
// Usage:
//
//	manager, err := storage.NewManager("medical_data")
//	if err != nil {
//	    return err
//	}
//	dest := manager.PathFor("FhirStudy", "20240604-lab-0.pdf")
//	n, err := storage.WriteStream(body, dest, storage.DefaultChunkSize)
package storage
