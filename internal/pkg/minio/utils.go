package minio

import (
	"fmt"
	"regexp"
	"strings"
)

var bucketNameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9\-]{1,61}[a-z0-9]$`)

// ValidateBucketName validates a bucket name according to S3 naming rules
func ValidateBucketName(bucketName string) error {
	if bucketName == "" {
		return fmt.Errorf("bucket name cannot be empty")
	}
	if !bucketNameRegex.MatchString(bucketName) {
		return fmt.Errorf("bucket name %q must be 3-63 lowercase letters, numbers or hyphens", bucketName)
	}
	if strings.Contains(bucketName, "--") {
		return fmt.Errorf("bucket name cannot contain consecutive hyphens")
	}
	return nil
}

// ValidateObjectName validates an object name
func ValidateObjectName(objectName string) error {
	if objectName == "" {
		return fmt.Errorf("object name cannot be empty")
	}
	if len(objectName) > 1024 {
		return fmt.Errorf("object name cannot exceed 1024 characters")
	}
	if strings.Contains(objectName, "\x00") {
		return fmt.Errorf("object name cannot contain null bytes")
	}
	return nil
}

// SanitizeObjectName drops null bytes and collapses slashes.
func SanitizeObjectName(objectName string) string {
	objectName = strings.ReplaceAll(objectName, "\x00", "")
	objectName = strings.Trim(objectName, "/")
	for strings.Contains(objectName, "//") {
		objectName = strings.ReplaceAll(objectName, "//", "/")
	}
	return objectName
}

// JoinKey builds an object key from path segments.
func JoinKey(parts ...string) string {
	return SanitizeObjectName(strings.Join(parts, "/"))
}
