package knowledge

// defaultPassages is the built-in regulation set used when no knowledge file
// is available. Six canonical sections cover the same ground as the shipped
// data file, so the assistant always has something to cite.
func defaultPassages() []Passage {
	return []Passage{
		{
			ID:       "grading-system",
			Category: "grading",
			Source:   "Academic Regulations - Grading",
			Content: `Grading System. Grade points range from 0 to 10. ` +
				`CGPA = sum of (grade point x credits) / total credits; the minimum passing CGPA is typically 4.0 or 5.0. ` +
				`Letter grades: O (Outstanding) = 10 (90-100%), A+ = 9 (80-89%), A = 8 (70-79%), B+ = 7 (60-69%), ` +
				`B = 6 (55-59%), C = 5 (50-54%), P (Pass) = 4 (40-49%), F (Fail) = 0 (below 40%). ` +
				`Approximate percentage from CGPA: (CGPA - 0.5) x 10, e.g. CGPA 8.5 is roughly 80%.`,
		},
		{
			ID:       "internal-external-evaluation",
			Category: "evaluation",
			Source:   "Academic Regulations - Evaluation",
			Content: `Internal and External Evaluation. Internal (continuous) assessment carries 30-40% of total marks: ` +
				`mid-semester exams, assignments, class participation, lab work, mini projects and quizzes, awarded by course faculty. ` +
				`External (end-semester) evaluation carries 60-70%: written examination, practical exams, viva voce and project ` +
				`evaluation by an external examiner, conducted by the university. Both components must usually be passed ` +
				`separately, with minimum passing marks of about 40% in each.`,
		},
		{
			ID:       "revaluation-process",
			Category: "revaluation",
			Source:   "Academic Regulations - Revaluation",
			Content: `Revaluation Process. Revaluation means having an answer sheet re-assessed by a different evaluator. ` +
				`Steps: review marks after results are declared, submit a revaluation application within the deadline ` +
				`(usually 10-15 days), pay the fee (typically 500-2000 per subject), the sheet is marked by a new examiner, ` +
				`and revised marks are published within 30-45 days. Marks may increase, decrease, or stay the same, and the ` +
				`revaluation decision is generally final. Many institutions allow a photocopy of the answer sheet first.`,
		},
		{
			ID:       "supplementary-exam",
			Category: "supplementary",
			Source:   "Academic Regulations - Supplementary",
			Content: `Supplementary Examinations. A supplementary exam is an additional opportunity for students who failed a ` +
				`regular examination or missed it for valid reasons, including backlogs from previous semesters. It is usually ` +
				`held 1-2 months after regular exams, requires an additional fee (typically 1000-3000 per subject), follows the ` +
				`same marking pattern, and full marks can be scored in most institutions. Some institutions mark a ` +
				`supplementary pass with an 'S' on the grade card.`,
		},
		{
			ID:       "exam-rules",
			Category: "conduct",
			Source:   "Academic Regulations - Conduct",
			Content: `Examination Rules and Conduct. Before the exam: carry a valid ID card and hall ticket, arrive 30 minutes ` +
				`early, and keep only permitted materials; electronic devices are strictly prohibited. During the exam: write ` +
				`the roll number on every sheet, use blue or black ink, and tag additional sheets properly. Malpractice - ` +
				`copying, unauthorized materials, communicating with others, possession of electronic devices - leads to ` +
				`cancellation of the current exam, suspension from future exams, and academic penalties.`,
		},
		{
			ID:       "attendance-requirements",
			Category: "attendance",
			Source:   "Academic Regulations - Attendance",
			Content: `Attendance Requirements. Minimum 75% attendance in theory classes and typically 80% in practicals; a ` +
				`shortfall may lead to exam debarment. Attendance % = (classes attended / total classes) x 100. Students with ` +
				`65-74% may apply for condonation with medical certificates and a condonation fee; at most 2-3 condonations are ` +
				`allowed during a degree. Below 65% the student is detained. Medical leave must be reported within 3 days of ` +
				`absence with a certificate.`,
		},
	}
}
