package lsa

// Checksum computes the ISO 8473 Fletcher checksum of an encoded LSA. The age
// field is excluded and the stored checksum octets are treated as zero.
func Checksum(b []byte) uint16 {
	if len(b) < HeaderLen {
		return 0
	}
	data := b[2:]
	off := checksumOffset - 2
	var c0, c1 int
	for i, v := range data {
		if i == off || i == off+1 {
			v = 0
		}
		c0 += int(v)
		c1 += c0
		if i%4096 == 0 {
			c0 %= 255
			c1 %= 255
		}
	}
	c0 %= 255
	c1 %= 255

	x := ((len(data)-off-1)*c0 - c1) % 255
	if x <= 0 {
		x += 255
	}
	y := 510 - c0 - x
	if y > 255 {
		y -= 255
	}
	return uint16(x)<<8 | uint16(y&0xff)
}

// VerifyChecksum checks the stored checksum of an encoded LSA.
func VerifyChecksum(b []byte) bool {
	if len(b) < HeaderLen {
		return false
	}
	var c0, c1 int
	for i, v := range b[2:] {
		c0 += int(v)
		c1 += c0
		if i%4096 == 0 {
			c0 %= 255
			c1 %= 255
		}
	}
	return c0%255 == 0 && c1%255 == 0
}
