package mft

import "testing"

func TestBootSectorReader(t *testing.T) {
	r, err := NewBootSectorReader(buildBootSector())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if r.BytesPerSector() != testSectorSize {
		t.Errorf("bytes per sector = %d", r.BytesPerSector())
	}
	if r.ClusterSize() != testClusterSize {
		t.Errorf("cluster size = %d", r.ClusterSize())
	}
	if r.MftLCN() != testMftLCN {
		t.Errorf("mft LCN = %d", r.MftLCN())
	}
	if r.FileRecordSize() != testRecordSize {
		t.Errorf("file record size = %d", r.FileRecordSize())
	}
	if r.Serial() != testSerial {
		t.Errorf("serial = %016X", r.Serial())
	}
}

func TestBootSectorPositiveClustersPerRecord(t *testing.T) {
	b := buildBootSector()
	b[64] = 1 // one cluster per record
	r, err := NewBootSectorReader(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.FileRecordSize() != testClusterSize {
		t.Errorf("file record size = %d, want %d", r.FileRecordSize(), testClusterSize)
	}
}

func TestBootSectorRejectsWrongOem(t *testing.T) {
	b := buildBootSector()
	copy(b[3:11], "EXFAT   ")
	if _, err := NewBootSectorReader(b); err == nil {
		t.Fatal("expected error for non-NTFS OEM id")
	}
}

func TestBootSectorRejectsMissingMarker(t *testing.T) {
	b := buildBootSector()
	b[510] = 0
	if _, err := NewBootSectorReader(b); err == nil {
		t.Fatal("expected error for missing end marker")
	}
}

func TestBootSectorRejectsShortData(t *testing.T) {
	if _, err := NewBootSectorReader(make([]byte, 100)); err == nil {
		t.Fatal("expected error for short data")
	}
}
