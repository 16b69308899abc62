package models

import "time"

// Course defines the course model based on the 'courses' table
type Course struct {
	ID        int64     `json:"id" db:"id" example:"1"`
	Title     string    `json:"title" db:"title" example:"Physics 101"`
	TeacherID int64     `json:"teacherId" db:"teacher_id"`
	IsActive  bool      `json:"isActive" db:"is_active"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// ClassGroup defines a teaching group of a course based on the 'class_groups' table
type ClassGroup struct {
	ID        int64     `json:"id" db:"id" example:"1"`
	CourseID  int64     `json:"courseId" db:"course_id"`
	Name      string    `json:"name" db:"name" example:"Group A"`
	IsActive  bool      `json:"isActive" db:"is_active"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	Course    *Course   `json:"course,omitempty"` // Relation, no db tag
}

// Enrollment links a student to a class group ('enrollments' table)
type Enrollment struct {
	ID           int64     `json:"id" db:"id"`
	StudentID    int64     `json:"studentId" db:"student_id"`
	ClassGroupID int64     `json:"classGroupId" db:"class_group_id"`
	IsActive     bool      `json:"isActive" db:"is_active"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}
