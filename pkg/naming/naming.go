// Package naming converts between structure names, record key identifiers and attribute names
package naming

import (
	"strings"
	"unicode"
)

// KeyIdentifier derives the record key identifier for a structure by lower-casing the first
// letter and dropping the plural suffix: Clusters -> cluster, ContainerInstances -> containerInstance.
func KeyIdentifier(structure string) string {
	if structure == "" {
		return ""
	}
	singular := strings.TrimSuffix(structure, "s")
	return lowerFirst(singular)
}

// StructureName is the inverse of KeyIdentifier: containerInstance -> ContainerInstances.
func StructureName(key string) string {
	if key == "" {
		return ""
	}
	runes := []rune(key)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes) + "s"
}

// ArnField returns the identifier field of a key: cluster -> clusterArn.
func ArnField(key string) string {
	return key + "Arn"
}

// ArnListField returns the explicit identifier list field of a key: cluster -> clusterArns.
func ArnListField(key string) string {
	return key + "Arns"
}

// DefaultAttrName converts an SDK field name to the camelCase attribute name used in records:
// InstanceId -> instanceId, VpcId -> vpcId, HTTPCode -> httpCode.
func DefaultAttrName(name string) string {
	if name == "" {
		return ""
	}

	runes := []rune(name)
	if len(runes) == 1 {
		return strings.ToLower(name)
	}

	boundary := 1
	for boundary < len(runes) {
		if !unicode.IsUpper(runes[boundary]) {
			break
		}

		if boundary+1 < len(runes) && !unicode.IsUpper(runes[boundary+1]) {
			break
		}

		boundary++
	}

	prefix := strings.ToLower(string(runes[:boundary]))
	return prefix + string(runes[boundary:])
}

func lowerFirst(s string) string {
	runes := []rune(s)
	runes[0] = unicode.ToLower(runes[0])
	return string(runes)
}
