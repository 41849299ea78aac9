// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package msp

import "github.com/sigurn/crc8"

var crcTable = crc8.MakeTable(crc8.CRC8_DVB_S2)

// CalculateCRC computes the CRC-8/DVB-S2 checksum for the given data
func CalculateCRC(data []byte) uint8 {
	return crc8.Checksum(data, crcTable)
}
